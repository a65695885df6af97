package graph

import (
	"context"
)

// collectionPage mirrors the wire shape of a paginated Graph collection.
type collectionPage struct {
	Value    []map[string]any `json:"value"`
	NextLink string           `json:"@odata.nextLink"`
}

// scalarEnvelope mirrors the wire shape of a Graph function returning a
// single value, such as getOmaSettingPlaintextValue.
type scalarEnvelope struct {
	Value string `json:"value"`
}

// PageHandler consumes one page of records. Returning an error stops the walk.
type PageHandler func(records []map[string]any) error

// GetAll retrieves every record of a collection resource, following
// continuation links until the server stops providing them. The full
// collection is held in memory; prefer GetPages for very large tenants.
func (client *Client) GetAll(executionContext context.Context, resourcePath string) ([]map[string]any, error) {
	var accumulatedRecords []map[string]any
	walkError := client.GetPages(executionContext, resourcePath, func(records []map[string]any) error {
		accumulatedRecords = append(accumulatedRecords, records...)
		return nil
	})
	if walkError != nil {
		return nil, walkError
	}
	return accumulatedRecords, nil
}

// GetPages retrieves a collection resource page by page, invoking the handler
// once per page in server order. Any page failure aborts the walk with no
// partial hand-off for that page.
func (client *Client) GetPages(executionContext context.Context, resourcePath string, handler PageHandler) error {
	nextResource := resourcePath
	for len(nextResource) > 0 {
		var page collectionPage
		if getError := client.Get(executionContext, nextResource, &page); getError != nil {
			return getError
		}
		if handlerError := handler(page.Value); handlerError != nil {
			return handlerError
		}
		nextResource = page.NextLink
	}
	return nil
}

// GetScalarValue retrieves a Graph function result carrying a single string
// value.
func (client *Client) GetScalarValue(executionContext context.Context, resourcePath string) (string, error) {
	var envelope scalarEnvelope
	if getError := client.Get(executionContext, resourcePath, &envelope); getError != nil {
		return "", getError
	}
	return envelope.Value, nil
}
