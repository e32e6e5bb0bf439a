package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// RedemptionSignature signs a redemption vendor request: md5(appId + transId + timestamp + appSecret), lowercase hex
func RedemptionSignature(appID, transID, timestamp, appSecret string) string {
	sum := md5.Sum([]byte(appID + transID + timestamp + appSecret))
	return hex.EncodeToString(sum[:])
}

// WarehouseSignature signs a provisioning request body: sha1(body), lowercase hex
func WarehouseSignature(body []byte) string {
	sum := sha1.Sum(body)
	return hex.EncodeToString(sum[:])
}

// AutoGraphInput holds the order fields covered by the provisioning autoGraph digest
type AutoGraphInput struct {
	CustomerCode string
	CustomerAuth string
	Warehouse    string
	Type         int
	OrderTid     string
	ReceiveName  string
	Phone        string
	Timestamp    int64
	ProductCode  string
	Quantity     int
}

// OrderAutoGraph computes the per-order digest the provisioning vendor expects in the request body.
// Field order is fixed by the vendor; a single item group is hashed as productCode followed by quantity.
func OrderAutoGraph(in AutoGraphInput) string {
	data := in.CustomerCode +
		in.CustomerAuth +
		in.Warehouse +
		strconv.Itoa(in.Type) +
		in.OrderTid +
		in.ReceiveName +
		in.Phone +
		strconv.FormatInt(in.Timestamp, 10) +
		in.ProductCode + strconv.Itoa(in.Quantity)
	sum := sha1.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}
