package twap

import "encoding/hex"

var orderRecordPrefix = []byte("twap/order/")

func orderRecordKey(id [32]byte) []byte {
	suffix := hex.EncodeToString(id[:])
	key := make([]byte, len(orderRecordPrefix)+len(suffix))
	copy(key, orderRecordPrefix)
	copy(key[len(orderRecordPrefix):], suffix)
	return key
}
