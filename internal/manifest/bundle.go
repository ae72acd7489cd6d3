package manifest

import "strings"

// Bundle is the set of per-site cluster objects the download endpoint
// concatenates into one multi-document YAML stream, in the fixed §6
// order: service account, role, role binding, config map, deployment,
// service (kube only), site secret, link config maps, access-point
// config maps, and — for ready-bootstrap sites — access-point secrets.
type Bundle struct {
	Site SiteSpec

	IncludeService bool // kube platform only

	Secret                SiteSecretSpec
	LinkConfigMaps        []BundleLinkConfigMap
	AccessPointConfigMaps []BundleAccessPointConfigMap

	// IncludeAccessPointSecrets is set for ready-bootstrap sites (§4.6):
	// the bundle also carries the client credential for each access
	// point so the site can dial out immediately.
	IncludeAccessPointSecrets bool
	AccessPointSecrets        []BundleAccessPointSecret
}

// BundleLinkConfigMap is one of Bundle's link config map entries.
type BundleLinkConfigMap struct {
	LinkID, Host, Port string
}

// BundleAccessPointConfigMap is one of Bundle's access-point config map
// entries.
type BundleAccessPointConfigMap struct {
	AccessPointID, Host, Port string
}

// BundleAccessPointSecret is one of Bundle's access-point secret entries.
type BundleAccessPointSecret struct {
	AccessPointID         string
	CACrt, TLSCrt, TLSKey []byte
}

// Render assembles the bundle's YAML documents in §6's fixed order,
// joined with "---\n" document separators.
func Render(b Bundle) (string, error) {
	var docs []string

	sa, err := ServiceAccount(b.Site)
	if err != nil {
		return "", err
	}
	docs = append(docs, sa)

	role, err := Role(b.Site)
	if err != nil {
		return "", err
	}
	docs = append(docs, role)

	roleBinding, err := RoleBinding(b.Site)
	if err != nil {
		return "", err
	}
	docs = append(docs, roleBinding)

	routerCM, err := RouterConfigMap(b.Site)
	if err != nil {
		return "", err
	}
	docs = append(docs, routerCM)

	deployment, err := Deployment(b.Site)
	if err != nil {
		return "", err
	}
	docs = append(docs, deployment)

	if b.IncludeService {
		svc, err := SiteAPIService(b.Site)
		if err != nil {
			return "", err
		}
		docs = append(docs, svc)
	}

	secret, err := SiteSecret(b.Secret)
	if err != nil {
		return "", err
	}
	docs = append(docs, secret)

	for _, l := range b.LinkConfigMaps {
		doc, err := LinkConfigMap(b.Site, l.LinkID, l.Host, l.Port)
		if err != nil {
			return "", err
		}
		docs = append(docs, doc)
	}

	for _, ap := range b.AccessPointConfigMaps {
		doc, err := AccessPointConfigMap(b.Site, ap.AccessPointID, ap.Host, ap.Port)
		if err != nil {
			return "", err
		}
		docs = append(docs, doc)
	}

	if b.IncludeAccessPointSecrets {
		for _, ap := range b.AccessPointSecrets {
			doc, err := AccessPointSecret(b.Site, ap.AccessPointID, ap.CACrt, ap.TLSCrt, ap.TLSKey)
			if err != nil {
				return "", err
			}
			docs = append(docs, doc)
		}
	}

	return strings.Join(docs, "---\n"), nil
}
