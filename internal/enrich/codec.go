package enrich

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so identical frames encode to
// identical bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so parent and worker tolerate skew.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("enrich: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("enrich: CBOR decoder initialization failed: " + err.Error())
	}
}

// request asks a worker to enrich one file.
type request struct {
	ID      int     `cbor:"id"`
	Path    string  `cbor:"path"`
	Options Options `cbor:"options"`
}

// response carries the result for request ID back to the parent.
type response struct {
	ID     int    `cbor:"id"`
	Result Result `cbor:"result"`
}
