//go:build integration

// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package test runs the CRUD stack against a real postgres, started as a
// disposable container. Run with
//
//	go test -tags integration ./test/
package test

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/crudkit-tech/crudkit/access"
	"github.com/crudkit-tech/crudkit/client"
	"github.com/crudkit-tech/crudkit/core"
	"github.com/crudkit-tech/crudkit/core/csql"
	"github.com/crudkit-tech/crudkit/crud"
	"github.com/crudkit-tech/crudkit/storage"
	"github.com/crudkit-tech/crudkit/storage/sqlstore"
)

// Owner owns devices. Owners can only see and modify themselves.
type Owner struct {
	ID    int64     `json:"id"`
	Extid string    `json:"extid"`
	Name  string    `json:"name"`
	Devs  []*Device `json:"devices,omitempty"`
}

// Device belongs to an owner and is public.
type Device struct {
	ID      int64  `json:"id"`
	Extid   string `json:"extid"`
	Thing   string `json:"thing"`
	OwnerID int64  `json:"owner_id"`
	Owner   *Owner `json:"owner,omitempty"`
}

var (
	ownerType  = &storage.Type{Name: "owner", Prototype: (*Owner)(nil)}
	deviceType = &storage.Type{Name: "device", Prototype: (*Device)(nil)}
)

func init() {
	ownerType.Relations = []storage.Relation{
		{Name: "devices", Target: deviceType, Field: "owner_id", Many: true},
	}
	deviceType.Relations = []storage.Relation{
		{Name: "owner", Target: ownerType, Field: "owner_id"},
	}
}

func (o *Owner) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	if p == nil {
		return nil, access.Deny
	}
	return s.Query(ownerType).Filter("name", p.Identity()), nil
}

func (o *Owner) CanWrite(p core.Principal) bool { return o.Name == p.Identity() }

func (d *Device) QueryForUser(s storage.Session, p core.Principal) (storage.Query, error) {
	if p == nil {
		return nil, access.Deny
	}
	return s.Query(deviceType), nil
}

func (d *Device) CanRead(p core.Principal) bool  { return true }
func (d *Device) CanWrite(p core.Principal) bool { return true }

type principal string

func (p principal) Identity() string { return string(p) }

// IntegrationTestSuite boots a postgres container and wires the full CRUD
// stack over sqlstore.
type IntegrationTestSuite struct {
	suite.Suite

	postgresContainer testcontainers.Container
	db                *csql.DB
	store             *sqlstore.Store
	router            *mux.Router
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.db = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "crudkit_test")
	s.store = sqlstore.New(s.db)
	for _, t := range []*storage.Type{ownerType, deviceType} {
		s.Require().NoError(s.store.EnsureTable(ctx, t))
	}

	ext := crud.New(&crud.Builder{
		Session:             s.store,
		GetPrincipal:        core.PrincipalFromContext,
		AccessChecksEnabled: true,
	})

	s.router = mux.NewRouter()
	ext.Handle(s.router, "owner",
		ext.Collection(crud.CollectionConfig{
			Model:         ownerType,
			ListEnabled:   true,
			CreateEnabled: true,
		}),
		ext.Resource(crud.ResourceConfig{
			Model:         ownerType,
			GetEnabled:    true,
			UpdateEnabled: true,
			DeleteEnabled: true,
			KeyAttr:       "extid",
		}),
	)
	ext.Handle(s.router, "device",
		ext.Collection(crud.CollectionConfig{
			Model:       deviceType,
			ListEnabled: true,
			Prefetch:    []storage.Prefetch{storage.Single("owner")},
		}),
		ext.Resource(crud.ResourceConfig{
			Model:      deviceType,
			GetEnabled: true,
			KeyAttr:    "extid",
		}),
	)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.db != nil {
		s.db.ClearSchema()
		s.db.Close()
	}
	if s.postgresContainer != nil {
		s.Require().NoError(s.postgresContainer.Terminate(ctx))
	}
}

func (s *IntegrationTestSuite) clientAs(identity string) client.Client {
	return client.NewWithRouter(s.router).WithPrincipal(principal(identity))
}
