package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSite() SiteSpec {
	return SiteSpec{
		Name:        "member-a",
		Namespace:   "vanctl",
		Platform:    "kube",
		Mode:        RouterModeEdge,
		Role:        SiteRoleMember,
		RouterImage: "quay.io/skupper/router:latest",
	}
}

func TestServiceAccountEmitsControlledAnnotation(t *testing.T) {
	out, err := ServiceAccount(testSite())
	require.NoError(t, err)
	require.Contains(t, out, "kind: ServiceAccount")
	require.Contains(t, out, "name: member-a")
	require.Contains(t, out, "skx.io/controlled")
}

func TestRouterConfigMapCarriesNetworkID(t *testing.T) {
	site := testSite()
	site.NetworkID = "van-1"
	out, err := RouterConfigMap(site)
	require.NoError(t, err)
	require.Contains(t, out, "networkId")
	require.Contains(t, out, "van-1")
}

func TestRouterConfigMapAddsInterRouterListenerForInteriorMode(t *testing.T) {
	site := testSite()
	site.Mode = RouterModeInterior
	out, err := RouterConfigMap(site)
	require.NoError(t, err)
	require.Contains(t, out, "inter-router")
}

func TestDeploymentOmitsDataplaneContainerByDefault(t *testing.T) {
	out, err := Deployment(testSite())
	require.NoError(t, err)
	require.NotContains(t, out, "dataplane")
}

func TestDeploymentIncludesDataplaneWhenConfigured(t *testing.T) {
	site := testSite()
	site.DataplaneImage = "quay.io/skupper/dataplane:latest"
	out, err := Deployment(site)
	require.NoError(t, err)
	require.Contains(t, out, "dataplane")
}

func TestSiteSecretCarriesStateAnnotations(t *testing.T) {
	spec := SiteSecretSpec{
		SiteSpec:  testSite(),
		CACrt:     []byte("ca"),
		TLSCrt:    []byte("crt"),
		TLSKey:    []byte("key"),
		StateKey:  "tls-site-member-a",
		StateHash: Hash(map[string]interface{}{"k": "v"}),
		TLSInject: TLSInjectSite,
	}
	out, err := SiteSecret(spec)
	require.NoError(t, err)
	require.Contains(t, out, "skx.io/state-key")
	require.Contains(t, out, "skx.io/tls-inject")
}

func TestRenderOrdersDocumentsPerFixedSequence(t *testing.T) {
	b := Bundle{
		Site:           testSite(),
		IncludeService: true,
		Secret: SiteSecretSpec{
			SiteSpec: testSite(),
			CACrt:    []byte("ca"),
			TLSCrt:   []byte("crt"),
			TLSKey:   []byte("key"),
		},
		LinkConfigMaps: []BundleLinkConfigMap{{LinkID: "link-1", Host: "10.0.0.1", Port: "55671"}},
	}
	out, err := Render(b)
	require.NoError(t, err)

	order := []string{"kind: ServiceAccount", "kind: Role", "kind: RoleBinding", "kind: ConfigMap", "kind: Deployment", "kind: Service\n", "kind: Secret"}
	lastIdx := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		require.GreaterOrEqualf(t, idx, 0, "expected %q in rendered bundle", marker)
		require.Greaterf(t, idx, lastIdx, "%q should appear after the previous document", marker)
		lastIdx = idx
	}
}
