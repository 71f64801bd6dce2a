package openapi

import (
	"encoding/json"
	"testing"

	"github.com/faucetdb/keygate/internal/model"
)

func TestGenerateKeysSpec_ValidOpenAPI(t *testing.T) {
	doc := GenerateKeysSpec("http://localhost:7700", "")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want %q", doc.OpenAPI, "3.1.0")
	}
	if doc.Info == nil {
		t.Fatal("Info is nil")
	}
	if doc.Info.Title != "Keygate API" {
		t.Errorf("Info.Title = %q, want %q", doc.Info.Title, "Keygate API")
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:7700" {
		t.Errorf("Servers not set correctly")
	}
}

func TestGenerateKeysSpec_SecuritySchemes(t *testing.T) {
	doc := GenerateKeysSpec("http://localhost:7700", "X-Keygate-Key")

	apiKey, ok := doc.Components.SecuritySchemes["apiKey"]
	if !ok {
		t.Fatal("apiKey security scheme not found")
	}
	if apiKey.Value.In != "header" {
		t.Errorf("apiKey.In = %q, want %q", apiKey.Value.In, "header")
	}
	if apiKey.Value.Name != "X-Keygate-Key" {
		t.Errorf("apiKey.Name = %q, want %q", apiKey.Value.Name, "X-Keygate-Key")
	}

	bearer, ok := doc.Components.SecuritySchemes["bearerAuth"]
	if !ok {
		t.Fatal("bearerAuth security scheme not found")
	}
	if bearer.Value.Scheme != "bearer" {
		t.Errorf("bearerAuth.Scheme = %q, want %q", bearer.Value.Scheme, "bearer")
	}
	if len(doc.Security) != 2 {
		t.Errorf("Security requirements count = %d, want 2", len(doc.Security))
	}
}

func TestGenerateKeysSpec_Paths(t *testing.T) {
	doc := GenerateKeysSpec("http://localhost:7700", "")

	keys := doc.Paths.Find("/keys")
	if keys == nil {
		t.Fatal("path /keys not found")
	}
	if keys.Get == nil || keys.Post == nil {
		t.Error("/keys should have GET and POST")
	}
	if keys.Put != nil || keys.Delete != nil {
		t.Error("/keys should not have PUT or DELETE")
	}
	if keys.Post.Responses.Value("201") == nil {
		t.Error("POST /keys missing 201 response")
	}

	key := doc.Paths.Find("/keys/{keyId}")
	if key == nil {
		t.Fatal("path /keys/{keyId} not found")
	}
	if key.Get == nil || key.Patch == nil || key.Delete == nil {
		t.Error("/keys/{keyId} should have GET, PATCH and DELETE")
	}
	if len(key.Parameters) != 1 || key.Parameters[0].Value.Name != "keyId" {
		t.Errorf("path parameters = %v", key.Parameters)
	}
	del := key.Delete.Responses.Value("204")
	if del == nil {
		t.Fatal("DELETE missing 204 response")
	}
	if del.Value.Content != nil {
		t.Error("204 response should have no content")
	}
}

func TestGenerateKeysSpec_OperationIDsUnique(t *testing.T) {
	doc := GenerateKeysSpec("http://localhost:7700", "")

	seen := map[string]bool{}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				t.Errorf("%s %s has no operationId", method, path)
				continue
			}
			if seen[op.OperationID] {
				t.Errorf("duplicate operationId %q", op.OperationID)
			}
			seen[op.OperationID] = true

			for _, code := range []string{"400", "401", "403", "404", "500"} {
				if op.Responses.Value(code) == nil {
					t.Errorf("%s %s missing %s response", method, path, code)
				}
			}
		}
	}
	if len(seen) != 5 {
		t.Errorf("got %d operations, want 5", len(seen))
	}
}

func TestGenerateKeysSpec_Schemas(t *testing.T) {
	doc := GenerateKeysSpec("http://localhost:7700", "")

	action := doc.Components.Schemas["Action"]
	if action == nil {
		t.Fatal("Action schema missing")
	}
	if len(action.Value.Enum) != len(model.AllActions()) {
		t.Errorf("Action enum has %d values, want %d", len(action.Value.Enum), len(model.AllActions()))
	}

	create := doc.Components.Schemas["KeyCreate"]
	if create == nil {
		t.Fatal("KeyCreate schema missing")
	}
	want := map[string]bool{"actions": true, "indexes": true, "expiresAt": true}
	if len(create.Value.Required) != len(want) {
		t.Errorf("KeyCreate required = %v", create.Value.Required)
	}
	for _, r := range create.Value.Required {
		if !want[r] {
			t.Errorf("unexpected required field %q", r)
		}
	}

	update := doc.Components.Schemas["KeyUpdate"]
	if update == nil {
		t.Fatal("KeyUpdate schema missing")
	}
	if len(update.Value.Required) != 0 {
		t.Errorf("KeyUpdate should have no required fields, got %v", update.Value.Required)
	}

	expires := doc.Components.Schemas["Key"].Value.Properties["expiresAt"]
	if expires == nil || !expires.Value.Type.Includes("null") {
		t.Error("Key.expiresAt should be nullable")
	}
}

func TestGenerateKeysSpec_MarshalsToJSON(t *testing.T) {
	doc := GenerateKeysSpec("http://localhost:7700", "")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", out["openapi"])
	}
	paths, ok := out["paths"].(map[string]interface{})
	if !ok || paths["/keys"] == nil {
		t.Errorf("marshaled document missing /keys path")
	}
}
