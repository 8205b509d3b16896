// Package graphql assembles the root GraphQL schema from the per-module
// query fields.
package graphql

import (
	gql "github.com/graphql-go/graphql"

	"github.com/campusconnect/events-backend/graphql/modules/provisioning"
	"github.com/campusconnect/events-backend/provision"
)

var (
	store provision.Store
	cfg   provision.Config
)

// Init wires the store and config the resolvers run against. Call once
// before CreateSchema.
func Init(s provision.Store, c provision.Config) {
	store = s
	cfg = c
}

// CreateSchema builds the root query schema.
func CreateSchema() (gql.Schema, error) {
	fields := gql.Fields{}
	for name, field := range provisioning.GetQueryFields(store, cfg) {
		fields[name] = field
	}

	rootQuery := gql.NewObject(gql.ObjectConfig{
		Name:   "Query",
		Fields: fields,
	})

	return gql.NewSchema(gql.SchemaConfig{Query: rootQuery})
}
