package provisioning

import (
	"github.com/graphql-go/graphql"

	"github.com/campusconnect/events-backend/provision"
)

// GetQueryFields returns the provisioning queries to be mounted in the root schema
func GetQueryFields(store provision.Store, cfg provision.Config) graphql.Fields {
	return graphql.Fields{
		"provisioningStats": &graphql.Field{
			Type: ProvisioningStatsType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveStats(p.Context, store, cfg)
			},
		},
	}
}
