package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-staging/domain/staging"
	pkgerrors "catalog-staging/pkg/errors"
)

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestClient_FetchHierarchy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/product-hierarchy", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"hierarchy": [{
				"id": "cat-1", "type": "catalog", "name": "Spring Catalog",
				"children": [{
					"id": "grp-1", "type": "category", "name": "Outdoor",
					"fields": {"code": "OUT"},
					"children": [{"id": "prod-1", "type": "product", "name": "Tent"}]
				}]
			}]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	tree, err := client.FetchHierarchy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, []string{"cat-1"}, tree.Roots())
	assert.Equal(t, []string{"prod-1"}, tree.Children("grp-1"))

	code, ok := tree.Node("grp-1").Field("code")
	require.True(t, ok)
	assert.Equal(t, "OUT", code)
}

func TestClient_FetchHierarchy_Unsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.FetchHierarchy(context.Background())
	assert.Error(t, err)
}

func TestClient_ValidateChanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/changes/validate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload staging.CommitPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Changes, 1)

		_ = json.NewEncoder(w).Encode(staging.ValidationResult{
			Valid:    false,
			Errors:   []string{"Missing nodeId in change"},
			Warnings: []string{},
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.ValidateChanges(context.Background(), staging.CommitPayload{
		Changes: []staging.FieldChangeRecord{{NodeID: "prod-1", FieldName: "name"}},
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Missing nodeId in change"}, result.Errors)
}

func TestClient_CommitChanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/changes/commit", r.URL.Path)
		_ = json.NewEncoder(w).Encode(staging.CommitResult{
			Success:            true,
			AdditionsProcessed: 1,
			AdditionDetails: []staging.AdditionDetail{
				{TempID: "temp_product_1", RealID: "01tXX", Name: "Rug", Type: "product"},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.CommitChanges(context.Background(), staging.CommitPayload{
		Additions: []staging.AdditionPayload{{"tempId": "temp_product_1"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.AdditionDetails, 1)
	assert.Equal(t, "01tXX", result.AdditionDetails[0].RealID)
}

func TestClient_CommitChanges_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.CommitChanges(context.Background(), staging.CommitPayload{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "status 502")
}
