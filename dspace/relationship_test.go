package dspace

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/AnandSundar/go-halcache"
	"github.com/AnandSundar/go-halcache/internal/fakerest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findItem(t *testing.T, ctx context.Context, env *testEnv, id string) *Item {
	t.Helper()

	ch, err := env.repo.Items.FindByID(ctx, id, true)
	require.NoError(t, err)
	return await(t, ch, succeeded[*Item]).Payload
}

func TestRelationshipService_FindByLabel(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := findItem(t, ctx, env, fakerest.ItemID)

	ch, err := env.repo.Relationships.FindByLabel(ctx, item, "isAuthorOfPublication", FindListOptions{}, true)
	require.NoError(t, err)

	rd := await(t, ch, succeeded[*halcache.PaginatedList[*Relationship]])
	require.Equal(t, 1, rd.Payload.Len())

	rel := rd.Payload.Page[0]
	assert.Equal(t, "1", rel.ID)
	assert.True(t, strings.HasSuffix(rel.LeftItem(), "/core/items/"+fakerest.ItemID))
	assert.True(t, strings.HasSuffix(rel.RightItem(), "/core/items/"+fakerest.AuthorID))
}

func TestRelationshipService_AddRelationship(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	left := findItem(t, ctx, env, fakerest.ItemID)
	right := findItem(t, ctx, env, fakerest.OtherItemID)

	rd, err := env.repo.Relationships.AddRelationship(ctx, "2", left, right, "isReferencedBy", "references")
	require.NoError(t, err)
	assert.True(t, rd.HasSucceeded())
	assert.Equal(t, http.StatusCreated, rd.StatusCode)
	require.NotNil(t, rd.Payload)
	assert.Equal(t, "isReferencedBy", rd.Payload.LeftwardValue)

	// both items were dropped and fetched again
	env.client.Wait()
	assert.Equal(t, 2, env.backend.Hits(http.MethodGet, fakerest.APIPath+"/core/items/"+fakerest.ItemID))
	assert.Equal(t, 2, env.backend.Hits(http.MethodGet, fakerest.APIPath+"/core/items/"+fakerest.OtherItemID))

	ch, err := env.repo.Relationships.FindByItem(ctx, right, FindListOptions{}, true)
	require.NoError(t, err)
	list := await(t, ch, succeeded[*halcache.PaginatedList[*Relationship]])
	require.Equal(t, 1, list.Payload.Len())
	assert.Equal(t, "references", list.Payload.Page[0].RightwardValue)
}

func TestRelationshipService_DeleteRelationship(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := findItem(t, ctx, env, fakerest.ItemID)

	rd, err := env.repo.Relationships.DeleteRelationship(ctx, "1", "none")
	require.NoError(t, err)
	assert.True(t, rd.HasSucceeded())
	assert.Equal(t, http.StatusNoContent, rd.StatusCode)
	assert.Equal(t, 1, env.backend.Hits(http.MethodDelete, fakerest.APIPath+"/core/relationships/1"))

	ch, err := env.repo.Relationships.FindByLabel(ctx, item, "isAuthorOfPublication", FindListOptions{}, false)
	require.NoError(t, err)
	list := await(t, ch, succeeded[*halcache.PaginatedList[*Relationship]])
	assert.Equal(t, 0, list.Payload.Len())

	env.client.Wait()
	assert.Equal(t, 2, env.backend.Hits(http.MethodGet, fakerest.APIPath+"/core/items/"+fakerest.ItemID))
	assert.Equal(t, 1, env.backend.Hits(http.MethodGet, fakerest.APIPath+"/core/items/"+fakerest.AuthorID))
}

func TestRepository_Services(t *testing.T) {
	env := setupTestEnv(t)

	service, err := env.repo.Services.Lookup(TypeItem)
	require.NoError(t, err)
	assert.Equal(t, "items", service.LinkPath())

	service, err = env.repo.Services.Lookup(TypeRelationship)
	require.NoError(t, err)
	assert.Equal(t, TypeRelationship, service.ResourceType())

	endpoint, err := service.Endpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, env.api+"/core/relationships", endpoint)

	_, err = env.repo.Services.Lookup("workspaceitem")
	assert.Error(t, err)
}

func TestRegisterTypes(t *testing.T) {
	types := halcache.NewTypeRegistry()
	RegisterTypes(types)

	assert.Equal(t, []string{TypeBitstream, TypeCollection, TypeCommunity, TypeItem, TypeRelationship}, types.Types())
	assert.Panics(t, func() { RegisterTypes(types) })

	obj, err := types.Decode(TypeItem, []byte(`{"type":"item","uuid":"abc","name":"x","_links":{"self":{"href":"https://rest.api/core/items/abc"}}}`))
	require.NoError(t, err)
	item, ok := obj.(*Item)
	require.True(t, ok)
	assert.Equal(t, "abc", item.GetUUID())
	assert.Equal(t, "https://rest.api/core/items/abc", item.Self())
}
