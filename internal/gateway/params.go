package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roslink/roslink/internal/param"
)

// Node-scoped parameter services and their types.
const (
	srvListParameters  = "rcl_interfaces/srv/ListParameters"
	srvGetParameters   = "rcl_interfaces/srv/GetParameters"
	srvSetParameters   = "rcl_interfaces/srv/SetParameters"
	srvLegacySetParam  = "rosapi/SetParam"
	legacySetParamPath = "/rosapi/set_param"
)

// ListParameters returns the parameter names declared by a node. A failure
// here is wrapped in ErrParameterListUnavailable so callers can fall back
// to naming parameters manually instead of treating it as fatal.
func (s *Session) ListParameters(ctx context.Context, node string) ([]string, error) {
	resp, err := s.CallService(ctx, node+"/list_parameters", srvListParameters, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParameterListUnavailable, err)
	}

	var out struct {
		Result struct {
			Names []string `json:"names"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: decode list_parameters response: %v", ErrProtocol, err)
	}
	return out.Result.Names, nil
}

// GetParameters reads the named parameters from a node. Values come back
// in request order.
func (s *Session) GetParameters(ctx context.Context, node string, names []string) ([]param.Value, error) {
	resp, err := s.CallService(ctx, node+"/get_parameters", srvGetParameters, map[string]any{"names": names})
	if err != nil {
		return nil, fmt.Errorf("get parameters: %w", err)
	}

	var out struct {
		Values []param.Wire `json:"values"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("%w: decode get_parameters response: %v", ErrProtocol, err)
	}

	vals := make([]param.Value, len(out.Values))
	for i, w := range out.Values {
		vals[i] = param.Decode(w)
	}
	return vals, nil
}

// NodeParameters lists a node's parameters and reads their values, as two
// sequential calls. An error at either step is terminal for the operation
// and names the step that failed.
func (s *Session) NodeParameters(ctx context.Context, node string) (map[string]param.Value, error) {
	names, err := s.ListParameters(ctx, node)
	if err != nil {
		return nil, err
	}

	vals, err := s.GetParameters(ctx, node, names)
	if err != nil {
		return nil, err
	}

	params := make(map[string]param.Value, len(names))
	for i, name := range names {
		if i < len(vals) {
			params[name] = vals[i]
		}
	}
	return params, nil
}

// SetNodeParameter writes one parameter on a node. It first reads the
// parameter's currently-declared type so the encoded value preserves it
// (an integer stays an integer even when the new value looks like "3.0").
// When that read fails, encoding proceeds on type inference alone. A
// transport-level failure of the set call falls back to the legacy
// single-parameter path before giving up.
func (s *Session) SetNodeParameter(ctx context.Context, node, name string, value any) error {
	original := param.KindNotSet
	if vals, err := s.GetParameters(ctx, node, []string{name}); err == nil && len(vals) == 1 {
		original = vals[0].Kind()
	} else if err != nil {
		s.logger.Debug("could not read current parameter type, inferring",
			"node", node,
			"name", name,
			"error", err,
		)
	}

	wire, err := param.Encode(value, original)
	if err != nil {
		return fmt.Errorf("encode parameter %s: %w", name, err)
	}

	req := map[string]any{
		"parameters": []map[string]any{
			{"name": name, "value": wire},
		},
	}

	resp, err := s.CallService(ctx, node+"/set_parameters", srvSetParameters, req)
	if err != nil {
		if errors.Is(err, ErrProtocol) {
			return fmt.Errorf("set parameters: %w", err)
		}
		if legacyErr := s.setParamLegacy(ctx, node, name, value); legacyErr != nil {
			return fmt.Errorf("set parameters: %w (legacy fallback: %v)", err, legacyErr)
		}
		return nil
	}

	var out struct {
		Results []struct {
			Successful bool   `json:"successful"`
			Reason     string `json:"reason"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return fmt.Errorf("%w: decode set_parameters response: %v", ErrProtocol, err)
	}
	if len(out.Results) > 0 && !out.Results[0].Successful {
		return fmt.Errorf("%w: set parameters rejected: %s", ErrProtocol, out.Results[0].Reason)
	}
	return nil
}

// setParamLegacy writes a parameter through the rosapi single-parameter
// service, which takes the value JSON-encoded as a string.
func (s *Session) setParamLegacy(ctx context.Context, node, name string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode legacy value: %w", err)
	}

	full := name
	if node != "" {
		full = strings.TrimSuffix(node, "/") + "/" + strings.TrimPrefix(name, "/")
	}

	_, err = s.CallService(ctx, legacySetParamPath, srvLegacySetParam, map[string]any{
		"name":  full,
		"value": string(encoded),
	})
	if err != nil {
		return fmt.Errorf("legacy set_param: %w", err)
	}
	return nil
}
