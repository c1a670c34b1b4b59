package goldie

import (
	"bytes"
	"testing"

	"github.com/Velocidex/json"
	"github.com/sebdah/goldie/v2"
)

// Assert compares golden against the fixture stored under
// fixtures/<filename>.golden, creating it when tests run with
// -update.
func Assert(t *testing.T, filename string, golden []byte) {
	t.Helper()

	g := goldie.New(t)
	_ = g.WithFixtureDir("fixtures")
	g.Assert(t, filename, golden)
}

func AssertJson(t *testing.T, filename string, golden interface{}) {
	t.Helper()

	g := goldie.New(t)
	_ = g.WithFixtureDir("fixtures")
	g.Assert(t, filename, MustMarshalIndent(golden))
}

func MustMarshalIndent(v interface{}) []byte {
	result, err := MarshalIndent(v)
	if err != nil {
		panic(err)
	}
	return result
}

func MarshalIndent(v interface{}) ([]byte, error) {
	opts := json.NewEncOpts()
	b, err := json.MarshalWithOptions(v, opts)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	err = json.Indent(buf, b, "", " ")
	return buf.Bytes(), err
}
