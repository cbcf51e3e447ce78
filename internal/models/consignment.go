package models

type CreateConsignmentRequest struct {
	ConsignmentID  string `json:"consignmentId"`
	ProductName    string `json:"productName"`
	ProductionDate string `json:"productionDate"`
	FarmLocation   string `json:"farmLocation"`
	ProducerInfo   string `json:"producerInfo"`
}

type UpdateStatusRequest struct {
	Status   string `json:"status"`
	Location string `json:"location"`
}

// TransactionResponse is returned for every mined state change
type TransactionResponse struct {
	TransactionHash string `json:"transactionHash"`
	ConsignmentID   string `json:"consignmentId"`
	Status          string `json:"status"`
	BlockNumber     uint64 `json:"blockNumber"`
}

// Consignment is the current ledger view of a shipment. Timestamps are unix
// seconds as recorded by the ledger.
type Consignment struct {
	ConsignmentID      string `json:"consignmentId"`
	ProductName        string `json:"productName"`
	ProductionDate     string `json:"productionDate"`
	FarmLocation       string `json:"farmLocation"`
	ProducerInfo       string `json:"producerInfo"`
	CurrentStatus      string `json:"currentStatus"`
	CurrentLocation    string `json:"currentLocation"`
	ProducerAddress    string `json:"producerAddress"`
	CreatedAtTimestamp int64  `json:"createdAtTimestamp"`
}

type StatusUpdate struct {
	ConsignmentID   string `json:"consignmentId"`
	Status          string `json:"status"`
	Location        string `json:"location"`
	HandlerAddress  string `json:"handlerAddress"`
	Timestamp       int64  `json:"timestamp"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// TrailEntry is one event of the audit trail
type TrailEntry struct {
	Event           string `json:"event"`
	Actor           string `json:"actor"`
	ProductName     string `json:"productName,omitempty"`
	Status          string `json:"status"`
	Location        string `json:"location"`
	Timestamp       int64  `json:"timestamp"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
}
