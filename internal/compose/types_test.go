package compose

import (
	"testing"

	"github.com/fabricpilot/vanctl/internal/store/models"

	"github.com/stretchr/testify/require"
)

func TestParseBodySimple(t *testing.T) {
	body, err := ParseBody(`{
		"interfaces": [{"name": "db", "polarity": "south", "role": "database"}],
		"simple": [{"name": "deployment", "body": "kind: Deployment"}]
	}`)
	require.NoError(t, err)
	require.False(t, body.IsComposite())
	require.Len(t, body.Interfaces, 1)
	require.Equal(t, models.PolaritySouth, body.Interfaces[0].Polarity)
	require.Len(t, body.Simple, 1)
}

func TestParseBodyComposite(t *testing.T) {
	body, err := ParseBody(`{
		"interfaces": [{"name": "north", "polarity": "north", "role": "web"}],
		"composite": {"frontend": {"block": "web-component"}, "backend": {"block": "db-component", "revision": 2}},
		"childBindings": [{"northChild": "frontend", "northInterface": "db", "southChild": "backend", "southInterface": "db", "role": "database"}],
		"superBindings": [{"interface": "north", "child": "frontend", "childInterface": "north"}]
	}`)
	require.NoError(t, err)
	require.True(t, body.IsComposite())
	require.Len(t, body.Composite, 2)
	rev := 2
	require.Equal(t, ChildRef{Block: "db-component", Revision: &rev}, body.Composite["backend"])
	require.Len(t, body.ChildBindings, 1)
	require.Len(t, body.SuperBindings, 1)
	require.Equal(t, "north", body.SuperBindings[0].Interface)
}

func TestParseBodyRejectsMalformedJSON(t *testing.T) {
	_, err := ParseBody(`{"interfaces": `)
	require.Error(t, err)
}

func TestInstanceInterfacePath(t *testing.T) {
	inst := &instance{row: models.InstanceBlock{Path: "root/frontend"}}
	require.Equal(t, "root/frontend#north", inst.interfacePath("north"))
}
