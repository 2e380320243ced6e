package nodes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwmeng88/mdp-toolkit/node"
	"github.com/fwmeng88/mdp-toolkit/regularize"
)

func TestConfigJSON(t *testing.T) {
	b, err := json.Marshal(SFAConfig{IncludeLastSample: true, RankDeficit: regularize.PCA{Threshold: 1e-8}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"includeLastSample":true,"rankDeficit":{"name":"pca","value":{"Threshold":1e-8}}}`, string(b))
	var sfa SFAConfig
	require.NoError(t, json.Unmarshal(b, &sfa))
	assert.True(t, sfa.IncludeLastSample)
	assert.Equal(t, regularize.PCA{Threshold: 1e-8}, sfa.RankDeficit)

	var gsfa GSFAConfig
	require.NoError(t, json.Unmarshal([]byte(`{"trainMode":"clustered","rankDeficit":{"name":"auto"}}`), &gsfa))
	assert.Equal(t, node.Clustered, gsfa.TrainMode)
	assert.Equal(t, regularize.Auto{}, gsfa.RankDeficit)

	b, err = json.Marshal(DefaultGSFAConfig())
	require.NoError(t, err)
	assert.JSONEq(t, `{"trainMode":"regular","rankDeficit":null}`, string(b))

	var pca PCAConfig
	require.NoError(t, json.Unmarshal([]byte(`{"reduce":true,"varRel":1e-6}`), &pca))
	assert.True(t, pca.Reduce)
	assert.Equal(t, 1e-6, pca.VarRel)
}
