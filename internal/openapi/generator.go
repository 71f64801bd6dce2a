package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/keygate/internal/model"
)

const keysTag = "keys"

// GenerateKeysSpec generates the OpenAPI 3.1 document for the key management
// API served at baseURL.
func GenerateKeysSpec(baseURL, apiKeyHeader string) *openapi3.T {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keygate API",
			Description: "Create, inspect, update and revoke scoped API keys.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: apiKeyHeader,
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:   "http",
			Scheme: "bearer",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = errorResponseSchema()
	doc.Components.Schemas["Action"] = actionSchema()
	doc.Components.Schemas["Key"] = keySchema()
	doc.Components.Schemas["KeyCreate"] = keyInputSchema(true)
	doc.Components.Schemas["KeyUpdate"] = keyInputSchema(false)

	doc.Paths = openapi3.NewPaths()
	addKeyPaths(doc)
	return doc
}

func addKeyPaths(doc *openapi3.T) {
	keyRef := "#/components/schemas/Key"

	listResponse := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: openapi3.NewSchemaRef(keyRef, nil),
					},
				},
				"meta": metaSchema(),
			},
		},
	}

	doc.Paths.Set("/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{keysTag},
			Summary:     "List API keys",
			Description: "Requires the keys.get action.",
			OperationID: "list_keys",
			Parameters:  pageParameters(),
			Responses:   newResponses("200", "Page of API keys", listResponse),
		},
		Post: &openapi3.Operation{
			Tags:        []string{keysTag},
			Summary:     "Create an API key",
			Description: "Requires the keys.create action. actions, indexes and expiresAt are required; expiresAt may be null.",
			OperationID: "create_key",
			RequestBody: jsonBody("Key to create", "#/components/schemas/KeyCreate"),
			Responses:   newResponses("201", "Created API key", openapi3.NewSchemaRef(keyRef, nil)),
		},
	})

	idParam := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("keyId").
			WithDescription("The 64 character key.").
			WithSchema(openapi3.NewStringSchema()),
	}

	doc.Paths.Set("/keys/{keyId}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{idParam},
		Get: &openapi3.Operation{
			Tags:        []string{keysTag},
			Summary:     "Get an API key",
			Description: "Requires the keys.get action.",
			OperationID: "get_key",
			Responses:   newResponses("200", "The API key", openapi3.NewSchemaRef(keyRef, nil)),
		},
		Patch: &openapi3.Operation{
			Tags:        []string{keysTag},
			Summary:     "Update an API key",
			Description: "Requires the keys.update action. Omitted fields are unchanged and null clears a field.",
			OperationID: "update_key",
			RequestBody: jsonBody("Fields to change", "#/components/schemas/KeyUpdate"),
			Responses:   newResponses("200", "The updated API key", openapi3.NewSchemaRef(keyRef, nil)),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{keysTag},
			Summary:     "Delete an API key",
			Description: "Requires the keys.delete action.",
			OperationID: "delete_key",
			Responses:   newResponses("204", "Key deleted", nil),
		},
	})
}

// ─── Schema Builders ────────────────────────────────────────────────────────

func actionSchema() *openapi3.SchemaRef {
	actions := model.AllActions()
	enum := make([]interface{}, len(actions))
	for i, a := range actions {
		enum[i] = string(a)
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"string"},
			Enum:        enum,
			Description: "An operation a key may perform. \"*\" grants every action.",
		},
	}
}

func keySchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"description": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"id": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"string"},
						Description: "The key itself, 64 alphanumeric characters.",
						ReadOnly:    true,
					},
				},
				"actions": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: openapi3.NewSchemaRef("#/components/schemas/Action", nil),
					},
				},
				"indexes": stringArraySchema("Index names the key may access. \"*\" matches every index."),
				"expiresAt": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:   &openapi3.Types{"string", "null"},
						Format: "date-time",
					},
				},
				"createdAt": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", ReadOnly: true}},
				"updatedAt": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time", ReadOnly: true}},
			},
			Required: []string{"id", "actions", "indexes", "expiresAt", "createdAt", "updatedAt"},
		},
	}
}

// keyInputSchema describes create and update bodies. Only create has
// required fields.
func keyInputSchema(create bool) *openapi3.SchemaRef {
	s := &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"description": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string", "null"}}},
			"actions": &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: openapi3.NewSchemaRef("#/components/schemas/Action", nil),
				},
			},
			"indexes": stringArraySchema(""),
			"expiresAt": &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"string", "null"},
					Description: "RFC 3339 date-time, \"YYYY-MM-DDTHH:MM:SS\", \"YYYY-MM-DD HH:MM:SS\" " +
						"or \"YYYY-MM-DD\". Zone-less values are UTC. Must be in the future.",
				},
			},
		},
	}
	if create {
		s.Required = []string{"actions", "indexes", "expiresAt"}
	}
	return &openapi3.SchemaRef{Value: s}
}

func stringArraySchema(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"array"},
			Items:       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			Description: description,
		},
	}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"type":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}
}

func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int32",
						Description: "Number of keys in this page.",
					},
				},
				"total": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Total number of keys.",
					},
				},
				"limit": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int32",
						Description: "Maximum keys returned per page.",
					},
				},
				"offset": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int32",
						Description: "Number of keys skipped.",
					},
				},
			},
		},
	}
}

func pageParameters() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("limit").
				WithDescription("Maximum number of keys to return (default 20).").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("offset").
				WithDescription("Number of keys to skip before returning results.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
		},
	}
}

func jsonBody(description, ref string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(ref, nil)),
		},
	}
}

// newResponses builds a response set with the success entry plus the shared
// error responses. A nil schema produces a success response without a body.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	success := &openapi3.Response{Description: &successDesc}
	if schema != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	responses.Set(statusCode, &openapi3.ResponseRef{Value: success})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Unauthorized"},
		{"403", "Forbidden"},
		{"404", "Not found"},
		{"500", "Internal server error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
