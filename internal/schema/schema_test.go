package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpmux/gateway/internal/model"
	"github.com/mcpmux/gateway/internal/workerpool"
)

func toolFeature(t *testing.T, name, rawTool string) model.ServerFeature {
	t.Helper()
	return model.ServerFeature{ID: "feat_" + name, Kind: model.FeatureTool, Name: name, RawJSON: model.RawJSON(rawTool)}
}

func TestValidateTools_DropsInvalidSchema(t *testing.T) {
	pool := workerpool.New(4)

	good := toolFeature(t, "good", `{"name":"good","inputSchema":{"type":"object","properties":{"x":{"type":"string"}}}}`)
	bad := toolFeature(t, "bad", `{"name":"bad","inputSchema":{"type":"object","properties":{"x":{"type":"not-a-real-type"}}}}`)

	out, errs := ValidateTools(context.Background(), pool, []model.ServerFeature{good, bad})

	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].Name)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "bad")
}

func TestValidateTools_NonToolFeaturesPassThrough(t *testing.T) {
	pool := workerpool.New(2)

	prompt := model.ServerFeature{ID: "feat_p", Kind: model.FeaturePrompt, Name: "p", RawJSON: model.RawJSON(`{"name":"p"}`)}
	resource := model.ServerFeature{ID: "feat_r", Kind: model.FeatureResource, Name: "r", RawJSON: model.RawJSON(`{"uri":"file:///r"}`)}

	out, errs := ValidateTools(context.Background(), pool, []model.ServerFeature{prompt, resource})

	assert.Empty(t, errs)
	assert.Len(t, out, 2)
}

func TestValidateTools_NoInputSchemaIsValid(t *testing.T) {
	pool := workerpool.New(1)
	f := toolFeature(t, "schemaless", `{"name":"schemaless"}`)

	out, errs := ValidateTools(context.Background(), pool, []model.ServerFeature{f})

	assert.Empty(t, errs)
	require.Len(t, out, 1)
}

func TestValidateTools_MalformedToolJSONIsDropped(t *testing.T) {
	pool := workerpool.New(1)
	f := toolFeature(t, "broken", `not json`)

	out, errs := ValidateTools(context.Background(), pool, []model.ServerFeature{f})

	assert.Empty(t, out)
	require.Len(t, errs, 1)
}
