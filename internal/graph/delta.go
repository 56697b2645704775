package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// usersDeltaPath is the delta function on the users collection.
const usersDeltaPath = "/users/delta"

// removedAnnotation marks an object deleted (or moved out of scope) since
// the cursor was issued.
const removedAnnotation = "@removed"

// deltaHTTPPrefix is the scheme prefix used to detect full URL tokens
// returned by the Graph API delta endpoint.
const deltaHTTPPrefix = "http"

// deltaResponse mirrors the Graph API delta response JSON structure.
// Objects stay raw because the property set depends on $select.
type deltaResponse struct {
	Value     []map[string]json.RawMessage `json:"value"`
	NextLink  string                       `json:"@odata.nextLink"`  //nolint:tagliatelle // OData annotation key
	DeltaLink string                       `json:"@odata.deltaLink"` //nolint:tagliatelle // OData annotation key
}

// UsersDelta fetches one page of the users delta query.
// An empty token starts a full enumeration; otherwise token is a nextLink
// or deltaLink URL from a previous page, a path relative to the base URL,
// or a bare $deltatoken value. HTTP 410 surfaces as ErrGone.
func (c *Client) UsersDelta(ctx context.Context, token string, selectFields []string) (*DeltaPage, error) {
	path, err := c.buildDeltaPath(token, selectFields)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetching users delta page",
		slog.Bool("initial_sync", token == ""),
	)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr deltaResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("graph: decoding delta response: %w", err)
	}

	items := make([]ChangedItem, 0, len(dr.Value))

	for i := range dr.Value {
		item, ok := toChangedItem(dr.Value[i])
		if !ok {
			c.logger.Warn("skipping delta object without id", slog.Int("index", i))
			continue
		}

		items = append(items, item)
	}

	c.logger.Debug("fetched users delta page",
		slog.Int("items", len(items)),
		slog.Bool("has_next_link", dr.NextLink != ""),
		slog.Bool("has_delta_link", dr.DeltaLink != ""),
	)

	return &DeltaPage{
		Items:     items,
		NextLink:  dr.NextLink,
		DeltaLink: dr.DeltaLink,
	}, nil
}

// buildDeltaPath constructs the API path for a delta request.
func (c *Client) buildDeltaPath(token string, selectFields []string) (string, error) {
	switch {
	case token == "":
		if len(selectFields) == 0 {
			return usersDeltaPath, nil
		}

		return usersDeltaPath + "?$select=" + url.QueryEscape(strings.Join(selectFields, ",")), nil
	case strings.HasPrefix(token, deltaHTTPPrefix):
		path, err := c.stripBaseURL(token)
		if err != nil {
			return "", fmt.Errorf("graph: invalid delta token URL: %w", err)
		}

		return path, nil
	case strings.HasPrefix(token, "/"):
		return token, nil
	default:
		return usersDeltaPath + "?$deltatoken=" + url.QueryEscape(token), nil
	}
}

// toChangedItem flattens a raw delta object into a ChangedItem. Strings,
// numbers and booleans become attributes; OData annotations, nulls,
// objects and arrays are dropped. Returns false if the object has no id.
func toChangedItem(raw map[string]json.RawMessage) (ChangedItem, bool) {
	var item ChangedItem

	if idRaw, ok := raw["id"]; ok {
		if err := json.Unmarshal(idRaw, &item.ID); err != nil {
			return ChangedItem{}, false
		}
	}

	if item.ID == "" {
		return ChangedItem{}, false
	}

	_, item.Removed = raw[removedAnnotation]
	item.Attributes = make(map[string]string, len(raw))

	for key, value := range raw {
		if key == "id" || strings.HasPrefix(key, "@") || strings.Contains(key, "@odata.") {
			continue
		}

		if s, ok := scalarString(value); ok {
			item.Attributes[key] = norm.NFC.String(s)
		}
	}

	return item, true
}

// scalarString renders a JSON scalar as a string.
func scalarString(raw json.RawMessage) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}
