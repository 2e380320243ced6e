package regularize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// methods maps the name of every registered method to its type.
var methods = make(map[string]reflect.Type)

func init() {
	for _, m := range []Method{None{}, Reg{}, PCA{}, SVD{}, Auto{}} {
		Register(m)
	}
}

// Register records the type of m under m.Name() so that Marshaler can
// decode it. Registering a name twice panics.
func Register(m Method) {
	name := m.Name()
	if _, ok := methods[name]; ok {
		panic("regularize: method " + name + " already registered")
	}
	t := reflect.TypeOf(m)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	methods[name] = t
}

// Registered returns the sorted names of the registered methods.
func Registered() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NotRegistered is returned when decoding a method whose name was never
// registered.
type NotRegistered struct {
	Name string
}

func (n *NotRegistered) Error() string {
	return fmt.Sprintf("regularize: method %q not registered", n.Name)
}

// Marshaler encodes a Method as its name and its parameters. A nil Method
// encodes as null.
type Marshaler struct {
	Method Method
}

type methodJSON struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (m Marshaler) MarshalJSON() ([]byte, error) {
	if m.Method == nil {
		return []byte("null"), nil
	}
	name := m.Method.Name()
	if _, ok := methods[name]; !ok {
		return nil, &NotRegistered{Name: name}
	}
	value, err := json.Marshal(m.Method)
	if err != nil {
		return nil, err
	}
	return json.Marshal(methodJSON{Name: name, Value: value})
}

func (m *Marshaler) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		m.Method = nil
		return nil
	}
	var mj methodJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	t, ok := methods[mj.Name]
	if !ok {
		return &NotRegistered{Name: mj.Name}
	}
	ptr := reflect.New(t)
	if len(mj.Value) > 0 {
		if err := json.Unmarshal(mj.Value, ptr.Interface()); err != nil {
			return err
		}
	}
	method, ok := ptr.Elem().Interface().(Method)
	if !ok {
		return fmt.Errorf("regularize: registered type %v is not a Method", t)
	}
	m.Method = method
	return nil
}
