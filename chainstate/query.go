package chainstate

import "github.com/mr-pandabear/pandanode/model"

// GetBlock returns the block stored at height id, for the peer-wire server
// and GetHeaders.
func (cs *ChainState) GetBlock(id uint32) (*model.Block, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.blockStore.GetBlock(id)
}

// GetHeaders returns the stored headers for heights [start, end] inclusive,
// backing GET /block_headers. Heights beyond the current tip are omitted
// rather than erroring, so a caller racing the tip gets a short, valid
// answer.
func (cs *ChainState) GetHeaders(start, end uint32) ([]*model.BlockHeader, error) {
	cs.mu.RLock()
	tip := cs.height
	cs.mu.RUnlock()

	if end > tip {
		end = tip
	}
	if start > end {
		return nil, nil
	}

	headers := make([]*model.BlockHeader, 0, end-start+1)
	for id := start; id <= end; id++ {
		block, err := cs.GetBlock(id)
		if err != nil {
			return nil, err
		}
		headers = append(headers, block.Header)
	}
	return headers, nil
}
