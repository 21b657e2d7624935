package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// maxBlockDepth bounds recursion into nested blocks such as toggles.
const maxBlockDepth = 3

func (s *Service) queryDatabase(ctx context.Context, cursor string) (*DatabaseResponse, error) {
	endpoint := s.config.BaseURL + "/v1/databases/" + s.config.DatabaseID + "/query"

	body := map[string]any{
		"page_size": 100,
	}
	if s.config.StatusFilter != "" {
		body["filter"] = map[string]any{
			"property": "Status",
			"status": map[string]any{
				"equals": s.config.StatusFilter,
			},
		}
	}
	if cursor != "" {
		body["start_cursor"] = cursor
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	var response DatabaseResponse
	if err := s.do(req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// getAllBlocksRecursively returns the blocks of blockID in document order,
// children following their parent.
func (s *Service) getAllBlocksRecursively(ctx context.Context, blockID string) ([]map[string]any, error) {
	return s.collectBlocks(ctx, blockID, 0)
}

func (s *Service) collectBlocks(ctx context.Context, blockID string, depth int) ([]map[string]any, error) {
	var allBlocks []map[string]any
	cursor := ""

	for {
		blocks, nextCursor, hasMore, err := s.getPageBlocks(ctx, blockID, cursor)
		if err != nil {
			return nil, err
		}

		for _, block := range blocks {
			allBlocks = append(allBlocks, block)

			hasChildren, _ := block["has_children"].(bool)
			childID, _ := block["id"].(string)
			if !hasChildren || childID == "" || depth+1 >= maxBlockDepth {
				continue
			}

			children, err := s.collectBlocks(ctx, childID, depth+1)
			if err != nil {
				s.logger.Warn("Failed to fetch children blocks",
					zap.String("block_id", childID),
					zap.String("block_type", getBlockType(block)),
					zap.Error(err))
				continue
			}
			allBlocks = append(allBlocks, children...)
		}

		if !hasMore || nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return allBlocks, nil
}

func (s *Service) getPageBlocks(ctx context.Context, blockID, cursor string) ([]map[string]any, string, bool, error) {
	endpoint := s.config.BaseURL + "/v1/blocks/" + blockID + "/children"
	if cursor != "" {
		endpoint += "?start_cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", false, errors.Wrap(err, "create request")
	}

	var response struct {
		Results    []map[string]any `json:"results"`
		NextCursor string           `json:"next_cursor"`
		HasMore    bool             `json:"has_more"`
	}
	if err := s.do(req, &response); err != nil {
		return nil, "", false, err
	}

	return response.Results, response.NextCursor, response.HasMore, nil
}

func (s *Service) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.config.Token)
	req.Header.Set("Notion-Version", s.config.APIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "make request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("notion API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func getBlockType(block map[string]any) string {
	if blockType, ok := block["type"].(string); ok {
		return blockType
	}
	return "unknown"
}
