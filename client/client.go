// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a CRUD REST api.

Instead of marshalling HTTP, the client talks directly to the mux router.
This makes it the tool of choice for unit tests, and for request handlers
that need to call other handlers to fulfill their task. The same client
also works against a remote deployment via NewWithURL.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/crudkit-tech/crudkit/core"
)

// Client provides easy access to the CRUD REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	principal  core.Principal
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client that makes pseudo-REST requests directly
// through the mux router.
//
// WithPrincipal() injects a principal into the request context, bypassing
// the authentication middleware. WithContext() specifies a different base
// context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client that makes REST requests against a deployed
// backend.
//
// WithToken() adds a bearer token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added.
func (c Client) WithHeader(key string, value string) Client {
	c.defaultHeaders[key] = value
	return c
}

// WithToken returns a new client that sends the given bearer token.
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithPrincipal returns a new client that acts as the given principal.
// This works only directly against the mux router; a remote client uses
// WithToken().
func (c Client) WithPrincipal(p core.Principal) Client {
	c.principal = p
	return c
}

// WithContext returns a new client with a specific base request context.
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context the client will issue requests with.
func (c Client) Context() context.Context {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if c.principal != nil {
		ctx = core.ContextWithPrincipal(ctx, c.principal)
	}
	return ctx
}

func (c Client) do(method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r, _ := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		return rec.Result().StatusCode, rec.Body.Bytes(), nil
	}

	if c.token != "" {
		r.Header.Add("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}
	defer res.Body.Close()
	resBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, resBody, nil
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if raw, ok := body.([]byte); ok {
		return raw, nil
	}
	return json.MarshalWithOption(body, json.DisableHTMLEscape())
}

func unmarshalResult(resBody []byte, result interface{}) error {
	if resBody == nil || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

func wrongStatus(got, want int, resBody []byte) error {
	return fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
		got, want, strings.TrimSpace(string(resBody)))
}

// RawGet gets the resource from path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// The path can be extended with query strings.
//
// result can be a struct pointer, map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, resBody, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return status, err
	}
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != http.StatusOK {
		return status, wrongStatus(status, http.StatusOK, resBody)
	}
	return status, unmarshalResult(resBody, result)
}

// RawPost posts body to path. Expects http.StatusOK as response, otherwise
// it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	data, err := marshalBody(body)
	if err != nil {
		return http.StatusBadRequest, err
	}
	status, resBody, err := c.do(http.MethodPost, path, data)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, wrongStatus(status, http.StatusOK, resBody)
	}
	return status, unmarshalResult(resBody, result)
}

// RawPatch patches the resource at path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be a raw *[]byte.
// result can be nil.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	data, err := marshalBody(body)
	if err != nil {
		return http.StatusBadRequest, err
	}
	status, resBody, err := c.do(http.MethodPatch, path, data)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, wrongStatus(status, http.StatusOK, resBody)
	}
	return status, unmarshalResult(resBody, result)
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent as
// response, otherwise it will flag an error. Returns the actual http status
// code.
func (c Client) RawDelete(path string) (int, error) {
	status, resBody, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusNoContent {
		return status, wrongStatus(status, http.StatusNoContent, resBody)
	}
	return status, nil
}

// Collection is a convenience handle for the collection routes of one
// resource.
type Collection struct {
	client   *Client
	resource string
}

// Collection returns a collection client for the given singular resource
// name; the route uses the pluralized form.
func (c Client) Collection(resource string) Collection {
	return Collection{client: &c, resource: resource}
}

// Path returns the collection route.
func (r Collection) Path() string {
	return "/" + core.Plural(r.resource)
}

// List gets the entire collection.
func (r Collection) List(result interface{}) (int, error) {
	return r.client.RawGet(r.Path(), result)
}

// Create creates a new item.
func (r Collection) Create(body interface{}, result interface{}) (int, error) {
	return r.client.RawPost(r.Path(), body, result)
}

// Item is a convenience handle for the resource routes of one entity.
type Item struct {
	col Collection
	key string
}

// Item returns an item client for the entity with the given route key.
func (r Collection) Item(key string) Item {
	return Item{col: r, key: key}
}

// Path returns the resource route.
func (r Item) Path() string {
	return r.col.Path() + "/" + r.key
}

// Read gets the item.
func (r Item) Read(result interface{}) (int, error) {
	return r.col.client.RawGet(r.Path(), result)
}

// Patch partially updates the item.
func (r Item) Patch(body interface{}, result interface{}) (int, error) {
	return r.col.client.RawPatch(r.Path(), body, result)
}

// Delete deletes the item.
func (r Item) Delete() (int, error) {
	return r.col.client.RawDelete(r.Path())
}
