package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains the values a datex.toml may hold. Zero values
// stand for "use the default".
const schemaSource = `
#Manifest: {
	endpoint: {
		id:     string
		device: int & >=0 & <=31
	}
	routing: {
		type:             "" | "request" | "response" | "data" | "local-request" | "hello"
		ttl:              int & >=0 & <=255
		prio:             int & >=0 & <=255
		"max-block-size": 0 | (int & >=64 & <=65535)
		receivers:        [...string] | null
		flood:            bool
	}
	security: {
		sign:       bool
		encrypt:    bool
		"send-key": bool
	}
	store: {
		path: string
	}
}
`

// Validate checks m against the manifest schema.
func Validate(m *Manifest) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("datex.cue")).
		LookupPath(cue.ParsePath("#Manifest"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
