// Package api defines the request and response payloads shared by the HTTP
// server and the MCP tools, and runs them against the service layer.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/internal/service"
	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
	"github.com/Sumatoshi-tech/codemerge/pkg/render"
)

// ErrInvalidRequest marks a request the caller has to fix.
var ErrInvalidRequest = errors.New("invalid request")

// Default input names.
const (
	defaultLeftName  = "left"
	defaultRightName = "right"
)

// DiffRequest asks for the edit script between two texts.
type DiffRequest struct {
	Left      string `json:"left"                 jsonschema:"original text"`
	Right     string `json:"right"                jsonschema:"new text"`
	LeftName  string `json:"left_name,omitempty"  jsonschema:"optional file name of left, used for language detection"`
	RightName string `json:"right_name,omitempty" jsonschema:"optional file name of right"`
}

// MergeRequest asks for the merge tree of two texts. When Tree is set it
// takes the place of Left, which must then be empty, and Right is folded
// into it.
type MergeRequest struct {
	DiffRequest

	Tree        *mergetree.Snapshot `json:"tree,omitempty"`
	IncludeTree bool                `json:"include_tree,omitempty"`
}

// Merge3Request asks for a three-way merge.
type Merge3Request struct {
	Base        string `json:"base"                   jsonschema:"common ancestor text"`
	Version1    string `json:"version1"               jsonschema:"first edited text"`
	Version2    string `json:"version2"               jsonschema:"second edited text"`
	Resolution  string `json:"resolution,omitempty"   jsonschema:"unresolved (default), version1, version2 or both"`
	Label1      string `json:"label1,omitempty"       jsonschema:"conflict marker label for version1"`
	Label2      string `json:"label2,omitempty"       jsonschema:"conflict marker label for version2"`
	IncludeTree bool   `json:"include_tree,omitempty" jsonschema:"return the merge tree snapshot"`
}

// Event is one edit script entry with its text.
type Event struct {
	Kind  string `json:"kind"`
	Left  int    `json:"left"`
	Right int    `json:"right"`
	Text  string `json:"text"`
}

// Counts tallies an edit script.
type Counts struct {
	Unchanged int `json:"unchanged"`
	Inserted  int `json:"inserted"`
	Deleted   int `json:"deleted"`
}

// Stats mirrors mergetree.Stats.
type Stats struct {
	Trunk      int `json:"trunk"`
	Unchanged  int `json:"unchanged"`
	Inserted   int `json:"inserted"`
	Deleted    int `json:"deleted"`
	Conflicts  int `json:"conflicts"`
	Unresolved int `json:"unresolved"`
	MaxDepth   int `json:"max_depth"`
}

// DiffResponse answers a DiffRequest.
type DiffResponse struct {
	Events    []Event `json:"events"`
	Counts    Counts  `json:"counts"`
	Identical bool    `json:"identical"`
	Language  string  `json:"language,omitempty"`
}

// MergeResponse answers a MergeRequest.
type MergeResponse struct {
	Merged string              `json:"merged"`
	Events []Event             `json:"events"`
	Counts Counts              `json:"counts"`
	Stats  Stats               `json:"stats"`
	Tree   *mergetree.Snapshot `json:"tree,omitempty"`
}

// Merge3Response answers a Merge3Request. Merged carries conflict markers
// for every conflict left unresolved.
type Merge3Response struct {
	Merged    string              `json:"merged"`
	Conflicts int                 `json:"conflicts"`
	Stats     Stats               `json:"stats"`
	Tree      *mergetree.Snapshot `json:"tree,omitempty"`
}

// Handler runs API requests.
type Handler struct {
	svc    *service.Service
	render render.Options
}

// NewHandler creates a Handler. opts supplies the default conflict labels.
func NewHandler(svc *service.Service, opts render.Options) *Handler {
	return &Handler{svc: svc, render: opts}
}

// Diff runs a DiffRequest.
func (h *Handler) Diff(ctx context.Context, req DiffRequest) (*DiffResponse, error) {
	left, right := req.inputs()

	res, err := h.svc.Diff(ctx, left, right)
	if err != nil {
		return nil, err
	}

	return &DiffResponse{
		Events:    events(res.Script, res.Left.Lines, res.Right.Lines),
		Counts:    counts(res.Script),
		Identical: res.Script.Identity(),
		Language:  res.Right.Language,
	}, nil
}

// Merge runs a MergeRequest.
func (h *Handler) Merge(ctx context.Context, req MergeRequest) (*MergeResponse, error) {
	left, right := req.inputs()

	var (
		res  *service.MergeResult
		err  error
		prev []string
	)

	if req.Tree != nil {
		if req.Left != "" {
			return nil, fmt.Errorf("%w: tree and left are mutually exclusive", ErrInvalidRequest)
		}

		tree, treeErr := mergetree.FromSnapshot(req.Tree)
		if treeErr != nil {
			return nil, fmt.Errorf("%w: tree: %w", ErrInvalidRequest, treeErr)
		}

		prev, err = tree.Flatten()
		if err != nil {
			return nil, fmt.Errorf("%w: tree: %w", ErrInvalidRequest, err)
		}

		res, err = h.svc.MergeInto(ctx, tree, right)
	} else {
		res, err = h.svc.Merge(ctx, left, right)
		if res != nil {
			prev = res.Left.Lines
		}
	}

	if err != nil {
		return nil, err
	}

	merged, err := h.encode(res.Tree, res.Right.Format)
	if err != nil {
		return nil, err
	}

	out := &MergeResponse{
		Merged: merged,
		Events: events(res.Script, prev, res.Right.Lines),
		Counts: counts(res.Script),
		Stats:  stats(res.Tree.Stats()),
	}

	if req.IncludeTree {
		out.Tree = res.Tree.Snapshot()
	}

	return out, nil
}

// Merge3 runs a Merge3Request.
func (h *Handler) Merge3(ctx context.Context, req Merge3Request) (*Merge3Response, error) {
	resolution, err := mergetree.ParseResolution(req.Resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: resolution %q", ErrInvalidRequest, req.Resolution)
	}

	res, err := h.svc.Merge3(ctx,
		service.Input{Name: "base", Data: []byte(req.Base)},
		service.Input{Name: "version1", Data: []byte(req.Version1)},
		service.Input{Name: "version2", Data: []byte(req.Version2)},
		resolution,
	)
	if err != nil {
		return nil, err
	}

	opts := h.render
	if req.Label1 != "" {
		opts.Label1 = req.Label1
	}

	if req.Label2 != "" {
		opts.Label2 = req.Label2
	}

	data, err := lines.Encode(render.FlattenWithMarkers(res.Tree, opts), res.Base.Format)
	if err != nil {
		return nil, fmt.Errorf("encode merged: %w", err)
	}

	out := &Merge3Response{
		Merged:    string(data),
		Conflicts: res.Conflicts,
		Stats:     stats(res.Tree.Stats()),
	}

	if req.IncludeTree {
		out.Tree = res.Tree.Snapshot()
	}

	return out, nil
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}

	errType, _ := service.Classify(err)

	switch errType {
	case observability.ErrTypeValidation:
		return http.StatusUnprocessableEntity
	case observability.ErrTypeTooLarge:
		return http.StatusRequestEntityTooLarge
	case observability.ErrTypeConflict:
		return http.StatusConflict
	case observability.ErrTypeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) encode(tree *mergetree.Tree, f lines.Format) (string, error) {
	flat, err := tree.Flatten()
	if err != nil {
		return "", err
	}

	data, err := lines.Encode(flat, f)
	if err != nil {
		return "", fmt.Errorf("encode merged: %w", err)
	}

	return string(data), nil
}

func (r DiffRequest) inputs() (service.Input, service.Input) {
	leftName, rightName := r.LeftName, r.RightName
	if leftName == "" {
		leftName = defaultLeftName
	}

	if rightName == "" {
		rightName = defaultRightName
	}

	return service.Input{Name: leftName, Data: []byte(r.Left)}, service.Input{Name: rightName, Data: []byte(r.Right)}
}

func events(script lcs.Script, left, right []string) []Event {
	out := make([]Event, 0, len(script))

	for _, ev := range script {
		var text string
		if ev.Kind == lcs.Inserted {
			text = right[ev.Right]
		} else {
			text = left[ev.Left]
		}

		out = append(out, Event{Kind: ev.Kind.String(), Left: ev.Left, Right: ev.Right, Text: text})
	}

	return out
}

func counts(script lcs.Script) Counts {
	unchanged, inserted, deleted := script.Counts()

	return Counts{Unchanged: unchanged, Inserted: inserted, Deleted: deleted}
}

func stats(st mergetree.Stats) Stats {
	return Stats{
		Trunk:      st.Trunk,
		Unchanged:  st.Unchanged,
		Inserted:   st.Inserted,
		Deleted:    st.Deleted,
		Conflicts:  st.Conflicts,
		Unresolved: st.Unresolved,
		MaxDepth:   st.MaxDepth,
	}
}
