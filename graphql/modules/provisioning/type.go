// Package provisioning defines the GraphQL types and queries for the
// account provisioning admin view.
package provisioning

import (
	"github.com/graphql-go/graphql"
)

// StateCountType is one (state, count) pair of the per-state aggregate.
var StateCountType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StateCount",
	Fields: graphql.Fields{
		"state": &graphql.Field{Type: graphql.String},
		"count": &graphql.Field{Type: graphql.Int},
	},
})

// TransitionType is one entry of an account's transition log.
var TransitionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StateTransition",
	Fields: graphql.Fields{
		"from":      &graphql.Field{Type: graphql.String},
		"to":        &graphql.Field{Type: graphql.String},
		"timestamp": &graphql.Field{Type: graphql.DateTime},
		"reason":    &graphql.Field{Type: graphql.String},
	},
})

// StuckRecordType is an in-flight account past the staleness threshold.
var StuckRecordType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StuckRecord",
	Fields: graphql.Fields{
		"id":          &graphql.Field{Type: graphql.String},
		"username":    &graphql.Field{Type: graphql.String},
		"state":       &graphql.Field{Type: graphql.String},
		"createdAt":   &graphql.Field{Type: graphql.DateTime},
		"age":         &graphql.Field{Type: graphql.String},
		"transitions": &graphql.Field{Type: graphql.NewList(TransitionType)},
	},
})

// ProvisioningStatsType is the root stats aggregate.
var ProvisioningStatsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ProvisioningStats",
	Fields: graphql.Fields{
		"countsByState":    &graphql.Field{Type: graphql.NewList(StateCountType)},
		"stuckRecordCount": &graphql.Field{Type: graphql.Int},
		"stuckRecords":     &graphql.Field{Type: graphql.NewList(StuckRecordType)},
	},
})
