// Package schema validates discovered tool input schemas before they
// are persisted, using github.com/google/jsonschema-go's Schema.Resolve
// to drop schemas that do not resolve at discovery time rather than
// failing later at call time.
package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/workerpool"
)

// ValidateTools resolves every tool feature's raw input schema
// concurrently (bounded by pool), dropping any feature whose schema
// fails to compile and returning one error per dropped feature. A server
// with hundreds of tools would otherwise serialize on schema compilation
// before a single feature gets persisted.
func ValidateTools(ctx context.Context, pool *workerpool.Pool, features []model.ServerFeature) ([]model.ServerFeature, []error) {
	valid := make([]bool, len(features))
	errs := make([]error, len(features))

	tasks := make([]func(context.Context) error, 0, len(features))
	for i, f := range features {
		i, f := i, f
		if f.Kind != model.FeatureTool {
			valid[i] = true
			continue
		}
		tasks = append(tasks, func(context.Context) error {
			ok, err := resolvesCleanly(f)
			valid[i] = ok
			if err != nil {
				errs[i] = fmt.Errorf("schema: tool %q: %w", f.Name, err)
			}
			return nil
		})
	}
	_ = pool.Run(ctx, tasks...)

	out := make([]model.ServerFeature, 0, len(features))
	var failures []error
	for i, f := range features {
		if valid[i] {
			out = append(out, f)
		} else if errs[i] != nil {
			failures = append(failures, errs[i])
		}
	}
	return out, failures
}

func resolvesCleanly(f model.ServerFeature) (bool, error) {
	var t mcp.Tool
	if err := json.Unmarshal(f.RawJSON, &t); err != nil {
		return false, err
	}
	if t.InputSchema == nil {
		return true, nil
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return false, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	if _, err := s.Resolve(nil); err != nil {
		return false, err
	}
	return true, nil
}
