package halcache_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/AnandSundar/go-halcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const rootJSON = `{"_links": {
	"self": {"href": "` + api + `"},
	"items": {"href": "` + api + `/core/items"},
	"search": {"href": "` + api + `/discover/search{?query,page,size}", "templated": true}
}}`

func TestClient_Endpoint(t *testing.T) {
	client, transport := setupClient(t, halcache.WithRootURL(api))
	ctx := withTimeout(t)

	transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req *halcache.Request) (*halcache.RawResponse, error) {
			assert.Equal(t, api, req.Href)
			return ok(rootJSON), nil
		}).
		Times(1)

	href, err := client.Endpoint(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, api+"/core/items", href)

	href, err = client.Endpoint(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, api+"/discover/search", href, "template parameters are stripped")

	_, err = client.Endpoint(ctx, "workflowitems")
	assert.ErrorIs(t, err, halcache.ErrUnknownEndpoint)
}

func TestClient_EndpointWithoutRoot(t *testing.T) {
	client, _ := setupClient(t)

	_, err := client.Endpoint(withTimeout(t), "items")
	assert.ErrorIs(t, err, halcache.ErrUnknownEndpoint)
}

func TestClient_EndpointRootFails(t *testing.T) {
	client, transport := setupClient(t, halcache.WithRootURL(api))

	transport.EXPECT().Do(gomock.Any(), gomock.Any()).Return(status(http.StatusServiceUnavailable, ``), nil)

	_, err := client.Endpoint(withTimeout(t), "items")
	assert.ErrorIs(t, err, halcache.ErrUnknownEndpoint)
}

const collectionJSON = `{
	"uuid": "2",
	"type": "collection",
	"name": "A collection",
	"_links": {"self": {"href": "` + api + `/core/collections/2"}}
}`

func TestClient_InvalidateByHref(t *testing.T) {
	client, transport := setupClient(t)
	ctx := withTimeout(t)

	itemHref := api + "/core/items/1"
	collectionHref := api + "/core/collections/2"

	transport.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req *halcache.Request) (*halcache.RawResponse, error) {
			if req.Href == collectionHref {
				return ok(collectionJSON), nil
			}
			return ok(itemJSON), nil
		}).
		Times(2)

	itemReq := newRequest(t, halcache.MethodGet, itemHref)
	collectionReq := newRequest(t, halcache.MethodGet, collectionHref)
	send(t, client, itemReq, true)
	send(t, client, collectionReq, true)
	client.Wait()

	require.NoError(t, client.AddDependency(ctx, itemHref, collectionHref))

	invalidated, err := client.InvalidateByHref(ctx, collectionHref)
	require.NoError(t, err)
	assert.True(t, invalidated)

	for _, req := range []*halcache.Request{itemReq, collectionReq} {
		entry, found := client.Registry.GetByUUID(req.UUID)
		require.True(t, found)
		assert.Equal(t, halcache.SuccessStale, entry.State, req.Href)
	}

	entry, err := client.Cache.GetByHref(ctx, collectionHref)
	require.NoError(t, err)
	assert.Empty(t, entry.DependentRequestUUIDs)

	invalidated, err = client.InvalidateByHref(ctx, api+"/core/items/unknown")
	require.NoError(t, err)
	assert.True(t, invalidated)
}

func TestClient_StaleEntryIsRefetched(t *testing.T) {
	client, transport := setupClient(t)
	ctx := withTimeout(t)
	href := api + "/core/items/1"

	transport.EXPECT().Do(gomock.Any(), gomock.Any()).Return(ok(itemJSON), nil).Times(2)

	send(t, client, newRequest(t, halcache.MethodGet, href), true)
	client.Wait()

	_, err := client.InvalidateByHref(ctx, href)
	require.NoError(t, err)

	sent, err := client.Send(ctx, newRequest(t, halcache.MethodGet, href), true)
	require.NoError(t, err)
	assert.True(t, sent)
}
