package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/compiler"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/testutil"
)

func findType(desc ModelDescription, name string) *TypeDescription {
	for i := range desc.Types {
		if desc.Types[i].Name == name {
			return &desc.Types[i]
		}
	}
	return nil
}

func TestDescribe(t *testing.T) {
	desc := Describe(compiler.MustLoadString(testutil.ShopModel))

	party := findType(desc, "Party")
	require.NotNil(t, party)
	assert.True(t, party.Abstract)
	require.Len(t, party.Attributes, 1)
	assert.Equal(t, MemberDescription{Name: "name", Type: "String", Member: "stored", Required: true}, party.Attributes[0])

	customer := findType(desc, "Customer")
	require.NotNil(t, customer)
	assert.Equal(t, []string{"Party"}, customer.Extends)
	assert.Empty(t, customer.Attributes, "inherited attributes stay on the supertype")

	order := findType(desc, "Order")
	require.NotNil(t, order)
	rels := map[string]RelationDescription{}
	for _, r := range order.Relations {
		rels[r.Name] = r
	}
	assert.Equal(t, "1..1", rels["customer"].Bounds)
	assert.Equal(t, "orders", rels["customer"].Partner)
	assert.Equal(t, "0..*", rels["items"].Bounds)
	assert.Equal(t, "composition", rels["items"].Kind)
	assert.Empty(t, rels["shipment"].Partner)

	info := findType(desc, "OrderInfo")
	require.NotNil(t, info)
	assert.Equal(t, "transfer", info.Kind)
	assert.Equal(t, "Order", info.MapsTo)

	assert.Equal(t, []string{"OPEN", "SHIPPED", "CLOSED"}, desc.Enumerations["Status"])
}

func TestCompile_Text(t *testing.T) {
	dir := testutil.WriteModel(t, nil)

	out, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled")
	assert.Contains(t, out, "Party (entity, abstract)")
	assert.Contains(t, out, "OrderInfo (transfer of Order)")
	assert.Contains(t, out, "items → OrderDetail 0..* [composition, stored]")
}

func TestCompile_OutputFile(t *testing.T) {
	dir := testutil.WriteModel(t, nil)
	outFile := filepath.Join(t.TempDir(), "model.json")

	out, err := execute(t, "compile", dir, "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote model description to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var desc ModelDescription
	require.NoError(t, json.Unmarshal(data, &desc))
	assert.NotNil(t, findType(desc, "Dashboard"))
}

func TestCompile_JSON(t *testing.T) {
	dir := testutil.WriteModel(t, nil)

	data := jsonData(t, "compile", dir).(map[string]any)
	types, ok := data["types"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, types)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		want string
	}{
		{"missing directory", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") }, compiler.ErrCodeNotFound},
		{"no files", func(t *testing.T) string { return t.TempDir() }, compiler.ErrCodeNoFiles},
		{"invalid model", func(t *testing.T) string {
			return testutil.WriteModel(t, map[string]string{"broken.cue": brokenModel})
		}, "unknown target type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "compile", tt.dir(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "✗ Compilation failed")
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCompile_WriteFailure(t *testing.T) {
	dir := testutil.WriteModel(t, nil)

	out, err := execute(t, "compile", dir, "-o", filepath.Join(t.TempDir(), "missing", "model.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeWriteFailed)
}
