package uiautomator2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSuchElement is returned when a lookup matches nothing.
var ErrNoSuchElement = errors.New("no such element")

// Element represents a UI element on the device.
type Element struct {
	id     string
	client *Client
}

// ID returns the element ID.
func (e *Element) ID() string {
	return e.id
}

// FindElement finds a single element. A miss returns an error wrapping
// ErrNoSuchElement.
func (c *Client) FindElement(ctx context.Context, strategy, selector string) (*Element, error) {
	req := FindElementRequest{
		Strategy: strategy,
		Selector: selector,
	}

	data, err := c.request(ctx, http.MethodPost, c.sessionPath("/element"), req)
	if err != nil {
		var serr *ServerError
		if errors.As(err, &serr) && serr.IsNoSuchElement() {
			return nil, fmt.Errorf("%s=%s: %w", strategy, selector, ErrNoSuchElement)
		}
		return nil, err
	}

	id := elementID(value(data).Raw)
	if id == "" {
		return nil, fmt.Errorf("%s=%s: %w", strategy, selector, ErrNoSuchElement)
	}

	return &Element{id: id, client: c}, nil
}

// FindElements finds multiple elements. No match is an empty slice.
func (c *Client) FindElements(ctx context.Context, strategy, selector string) ([]*Element, error) {
	req := FindElementRequest{
		Strategy: strategy,
		Selector: selector,
	}

	data, err := c.request(ctx, http.MethodPost, c.sessionPath("/elements"), req)
	if err != nil {
		var serr *ServerError
		if errors.As(err, &serr) && serr.IsNoSuchElement() {
			return nil, nil
		}
		return nil, err
	}

	var elements []*Element
	for _, v := range value(data).Array() {
		if id := elementID(v.Raw); id != "" {
			elements = append(elements, &Element{id: id, client: c})
		}
	}
	return elements, nil
}

// elementID reads either the legacy ELEMENT key or the W3C element key.
func elementID(raw string) string {
	var ref map[string]string
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return ""
	}
	if id := ref["ELEMENT"]; id != "" {
		return id
	}
	return ref[w3cElementKey]
}

const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// Click taps the element.
func (e *Element) Click(ctx context.Context) error {
	_, err := e.client.request(ctx, http.MethodPost, e.client.sessionPath("/element/"+e.id+"/click"), nil)
	return err
}

// Clear clears the element's text.
func (e *Element) Clear(ctx context.Context) error {
	_, err := e.client.request(ctx, http.MethodPost, e.client.sessionPath("/element/"+e.id+"/clear"), nil)
	return err
}

// SendKeys types text into the element.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	req := InputTextRequest{Text: text}
	_, err := e.client.request(ctx, http.MethodPost, e.client.sessionPath("/element/"+e.id+"/value"), req)
	return err
}

// Attribute returns an element attribute. Booleans come back as "true" or
// "false".
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	data, err := e.client.request(ctx, http.MethodGet, e.client.sessionPath("/element/"+e.id+"/attribute/"+name), nil)
	if err != nil {
		return "", err
	}
	return value(data).String(), nil
}

// Rect returns the element's bounds.
func (e *Element) Rect(ctx context.Context) (ElementRect, error) {
	data, err := e.client.request(ctx, http.MethodGet, e.client.sessionPath("/element/"+e.id+"/rect"), nil)
	if err != nil {
		return ElementRect{}, err
	}

	v := value(data)
	return ElementRect{
		X:      int(v.Get("x").Int()),
		Y:      int(v.Get("y").Int()),
		Width:  int(v.Get("width").Int()),
		Height: int(v.Get("height").Int()),
	}, nil
}
