package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fabricpilot/vanctl/internal/manifest"
	"github.com/fabricpilot/vanctl/internal/store"
)

// componentKeyPrefix names the state key Deploy's output surfaces under,
// per the component-<id> convention internal/syncbridge.Bridge documents
// for its AppStateProvider hook. This implementation keys by application
// rather than by individual instance: site_data already rolls every
// allocated instance's rendered manifests up into one per-(site,
// application) YAML document, so one hash per application is the natural
// granularity without a second table duplicating that roll-up. The
// iface-<role>-<bid> half of the convention has no backing store here --
// binding-level state isn't persisted separately from the build graph --
// so Provider never emits those keys.
const componentKeyPrefix = "component-"

// Provider implements syncbridge.AppStateProvider over the site_data table
// that Deploy writes, so the sync bridge reports compose-engine output to
// member sites the same way it reports TLS secrets and links.
type Provider struct {
	st *store.Store
}

func NewProvider(st *store.Store) *Provider { return &Provider{st: st} }

func (p *Provider) LocalAppState(ctx context.Context, memberSiteID string) (map[string]string, error) {
	rows, err := store.ListSiteDataByMemberSite(ctx, p.st.Queryer(), memberSiteID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[componentKeyPrefix+r.ApplicationID] = manifest.Hash(map[string]interface{}{"yaml": r.YAML})
	}
	return out, nil
}

func (p *Provider) AppStateValue(ctx context.Context, memberSiteID, key string) (string, json.RawMessage, error) {
	applicationID, ok := strings.CutPrefix(key, componentKeyPrefix)
	if !ok {
		return "", nil, fmt.Errorf("compose: unrecognized app state key %q", key)
	}
	rows, err := store.ListSiteDataByMemberSite(ctx, p.st.Queryer(), memberSiteID)
	if err != nil {
		return "", nil, err
	}
	for _, r := range rows {
		if r.ApplicationID != applicationID {
			continue
		}
		data, err := json.Marshal(map[string]string{"yaml": r.YAML})
		if err != nil {
			return "", nil, err
		}
		return manifest.Hash(map[string]interface{}{"yaml": r.YAML}), data, nil
	}
	return "", nil, fmt.Errorf("compose: no site data for application %s at member site %s", applicationID, memberSiteID)
}
