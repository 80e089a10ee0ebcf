package bdr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageRows is the membership search page size used when callers do
// not configure one.
const DefaultPageRows = 500

// SearchQuery describes one page of a Solr-style search.
type SearchQuery struct {
	Query  string
	Filter string
	Fields []string
	Rows   int
	Start  int
}

// SearchPage is one page of search results plus the total hit count.
type SearchPage struct {
	NumFound int
	Docs     []SearchDoc
}

type searchResponse struct {
	Response struct {
		NumFound int         `json:"numFound"`
		Docs     []SearchDoc `json:"docs"`
	} `json:"response"`
}

// GetJSON fetches rawURL and decodes the response body into target.
func (c *Client) GetJSON(ctx context.Context, rawURL string, target any) error {
	body, err := c.get(ctx, rawURL, c.cfg.RequestTimeout)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("bdr request: decode %s: %w", rawURL, err)
	}
	return nil
}

// FetchText downloads a text payload. The stream timeout applies because
// extracted text files run to many megabytes.
func (c *Client) FetchText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.get(ctx, rawURL, c.cfg.StreamTimeout)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchItem retrieves and decodes an item API document.
func (c *Client) FetchItem(ctx context.Context, pid string) (*ItemDoc, error) {
	var doc ItemDoc
	if err := c.GetJSON(ctx, c.ItemAPIURL(pid), &doc); err != nil {
		return nil, err
	}
	if doc.PID == "" {
		doc.PID = pid
	}
	return &doc, nil
}

// FetchCollection retrieves and decodes a collection API document.
func (c *Client) FetchCollection(ctx context.Context, pid string) (*CollectionDoc, error) {
	var doc CollectionDoc
	if err := c.GetJSON(ctx, c.CollectionAPIURL(pid), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Search runs one page of a search query.
func (c *Client) Search(ctx context.Context, query SearchQuery) (*SearchPage, error) {
	var decoded searchResponse
	if err := c.GetJSON(ctx, c.searchURL(query), &decoded); err != nil {
		return nil, err
	}
	return &SearchPage{NumFound: decoded.Response.NumFound, Docs: decoded.Response.Docs}, nil
}

// CollectionMembers pages through every member of a collection, preserving
// the server's order. Paging stops on an empty page or once the offset
// passes the reported hit count.
func (c *Client) CollectionMembers(ctx context.Context, collectionPID string, rows int) ([]SearchDoc, error) {
	query := SearchQuery{
		Query:  "*:*",
		Filter: fmt.Sprintf("rel_is_member_of_collection_ssim:%q", collectionPID),
		Fields: []string{"pid", "primary_title"},
		Rows:   rows,
	}

	var docs []SearchDoc
	for {
		page, err := c.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(page.Docs) == 0 {
			break
		}
		docs = append(docs, page.Docs...)
		query.Start += query.Rows
		if query.Start >= page.NumFound {
			break
		}
	}
	return docs, nil
}

// ItemAPIURL returns the metadata endpoint for an item.
func (c *Client) ItemAPIURL(pid string) string {
	return c.cfg.BaseURL + "/api/items/" + pid + "/"
}

// CollectionAPIURL returns the metadata endpoint for a collection.
func (c *Client) CollectionAPIURL(pid string) string {
	return c.cfg.BaseURL + "/api/collections/" + pid + "/"
}

// StudioItemURL returns the human-facing page for an item.
func (c *Client) StudioItemURL(pid string) string {
	return c.cfg.BaseURL + "/studio/item/" + pid + "/"
}

// StudioCollectionURL returns the human-facing page for a collection.
func (c *Client) StudioCollectionURL(pid string) string {
	return c.cfg.BaseURL + "/studio/collections/" + pid + "/"
}

// StorageTextURL returns the canonical download URL for an item's
// extracted-text datastream.
func (c *Client) StorageTextURL(pid string) string {
	return c.cfg.BaseURL + "/storage/" + pid + "/" + TextDatastreamID + "/"
}

func (c *Client) searchURL(query SearchQuery) string {
	values := url.Values{}
	values.Set("q", query.Query)
	if query.Filter != "" {
		values.Set("fq", query.Filter)
	}
	if len(query.Fields) > 0 {
		values.Set("fl", strings.Join(query.Fields, ","))
	}
	values.Set("rows", strconv.Itoa(query.Rows))
	values.Set("start", strconv.Itoa(query.Start))
	return c.cfg.BaseURL + "/api/search/?" + values.Encode()
}
