package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartUnmarshalPicksOutputByToolName(t *testing.T) {
	data := `{"role":"assistant","parts":[
		{"type":"text","text":"hi"},
		{"type":"tool-plan_and_send_routine","state":"output-available","toolCallId":"c1","output":{"value":{"message":"R"},"emailSent":true}},
		{"type":"tool-find_best_products","state":"output-available","output":{"products":[{"id":"p1","name":"Gel","skin_types":["oily"],"concerns":[],"popularity":3}]}},
		{"type":"tool-legacy_thing","state":"output-error","output":{"summary":"S"}},
		{"type":"tool-send_mail","state":"input-available","input":{"to":"a@b.c"}}
	]}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	require.Len(t, msg.Parts, 5)

	assert.True(t, msg.Parts[0].IsText())
	assert.Equal(t, "hi", msg.Parts[0].Text)

	routine, ok := msg.Parts[1].Output.(*RoutineOutput)
	require.True(t, ok, "got %T", msg.Parts[1].Output)
	require.NotNil(t, routine.Value)
	assert.Equal(t, "R", routine.Value.Message)
	assert.True(t, routine.EmailSent)
	assert.Equal(t, "c1", msg.Parts[1].ToolCallID)

	products, ok := msg.Parts[2].Output.(*ProductsOutput)
	require.True(t, ok)
	require.Len(t, products.Products, 1)
	assert.Equal(t, []string{"oily"}, products.Products[0].SkinTypes)

	raw, ok := msg.Parts[3].Output.(RawOutput)
	require.True(t, ok)
	assert.Equal(t, "S", raw["summary"])
	assert.Equal(t, "legacy_thing", msg.Parts[3].ToolName())

	assert.Nil(t, msg.Parts[4].Output)
	assert.Equal(t, "a@b.c", msg.Parts[4].Input["to"])
	assert.False(t, msg.Parts[4].State.Terminal())
}

func TestPartMarshalKeepsWireShape(t *testing.T) {
	p := ToolPart(ToolSendMail, "c9", StateOutputAvailable, nil)
	p.Output = &MailOutput{Success: true, Message: "sent"}

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool-send_mail","state":"output-available","toolCallId":"c9","output":{"success":true,"message":"sent"}}`, string(b))

	b, err = json.Marshal(TextPart("x"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","text":"x"}`, string(b))
}

func TestPartRejectsMalformedOutput(t *testing.T) {
	var p Part
	err := json.Unmarshal([]byte(`{"type":"tool-send_mail","output":{"success":"yes"}}`), &p)
	assert.Error(t, err)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, RoleTool.Valid())
	assert.False(t, Role("bot").Valid())
}
