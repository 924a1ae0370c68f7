package gemini

import (
	"testing"

	"github.com/nstogner/glow/pkg/model"
	"google.golang.org/genai"
)

func TestBuildToolDeclarations(t *testing.T) {
	if got := buildToolDeclarations(nil); got != nil {
		t.Fatalf("buildToolDeclarations(nil) = %v, want nil", got)
	}

	tools := buildToolDeclarations([]model.ToolSpec{{
		Name:        "find_best_products",
		Description: "Search the catalog.",
		Parameters: &model.Schema{
			Type: model.TypeObject,
			Properties: map[string]*model.Schema{
				"skinType": {Type: model.TypeString, Enum: []string{"oily", "dry"}},
				"concerns": {Type: model.TypeArray, Items: &model.Schema{Type: model.TypeString}},
				"limit":    {Type: model.TypeInteger},
			},
			Required: []string{"skinType"},
		},
	}})

	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("unexpected declarations: %+v", tools)
	}
	decl := tools[0].FunctionDeclarations[0]
	if decl.Name != "find_best_products" {
		t.Errorf("Name = %q", decl.Name)
	}
	params := decl.Parameters
	if params.Type != genai.TypeObject {
		t.Errorf("Type = %q, want OBJECT", params.Type)
	}
	if got := params.Properties["skinType"].Enum; len(got) != 2 {
		t.Errorf("skinType enum = %v", got)
	}
	concerns := params.Properties["concerns"]
	if concerns.Type != genai.TypeArray || concerns.Items == nil || concerns.Items.Type != genai.TypeString {
		t.Errorf("concerns schema = %+v", concerns)
	}
	if params.Properties["limit"].Type != genai.TypeInteger {
		t.Errorf("limit type = %q", params.Properties["limit"].Type)
	}
	if len(params.Required) != 1 || params.Required[0] != "skinType" {
		t.Errorf("Required = %v", params.Required)
	}
}
