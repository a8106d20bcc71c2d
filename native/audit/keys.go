package audit

import "encoding/hex"

var (
	swapRecordPrefix    = []byte("audit/swap/")
	defaultThresholdKey = []byte("audit/threshold/default")
	pairThresholdPrefix = []byte("audit/threshold/pair/")
	statsKey            = []byte("audit/stats")
)

func swapRecordKey(id [32]byte) []byte {
	suffix := hex.EncodeToString(id[:])
	key := make([]byte, len(swapRecordPrefix)+len(suffix))
	copy(key, swapRecordPrefix)
	copy(key[len(swapRecordPrefix):], suffix)
	return key
}

func pairThresholdKey(tokenIn, tokenOut [20]byte) []byte {
	inPart := hex.EncodeToString(tokenIn[:])
	outPart := hex.EncodeToString(tokenOut[:])
	key := make([]byte, len(pairThresholdPrefix)+len(inPart)+1+len(outPart))
	copy(key, pairThresholdPrefix)
	copy(key[len(pairThresholdPrefix):], inPart)
	key[len(pairThresholdPrefix)+len(inPart)] = '/'
	copy(key[len(pairThresholdPrefix)+len(inPart)+1:], outPart)
	return key
}
