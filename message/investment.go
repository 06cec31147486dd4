package message

type AddShares struct {
	InvestmentID string `json:"investment_id"`
	PurchaseID   string `json:"purchase_id"`
	Quantity     int64  `json:"quantity"`
}

func (AddShares) MessageType() string { return TypeAddShares }

type SharesAdded struct {
	InvestmentID    string `json:"investment_id"`
	PurchaseID      string `json:"purchase_id"`
	SharesAvailable int64  `json:"shares_available"`
}

func (SharesAdded) MessageType() string { return TypeSharesAdded }

type ReserveShares struct {
	InvestmentID string `json:"investment_id"`
	SaleID       string `json:"sale_id"`
	Quantity     int64  `json:"quantity"`
}

func (ReserveShares) MessageType() string { return TypeReserveShares }

type SharesReserved struct {
	InvestmentID string `json:"investment_id"`
	SaleID       string `json:"sale_id"`
	Quantity     int64  `json:"quantity"`
}

func (SharesReserved) MessageType() string { return TypeSharesReserved }

// InsufficientShares rejects a ReserveShares the investment cannot cover.
type InsufficientShares struct {
	InvestmentID string `json:"investment_id"`
	SaleID       string `json:"sale_id"`
	Requested    int64  `json:"requested"`
	Available    int64  `json:"available"`
}

func (InsufficientShares) MessageType() string { return TypeInsufficientShares }

func (InsufficientShares) Reason() string { return "insufficient shares" }

type CompleteSharesReservation struct {
	InvestmentID string `json:"investment_id"`
	SaleID       string `json:"sale_id"`
}

func (CompleteSharesReservation) MessageType() string { return TypeCompleteSharesReservation }

type SharesReservationCompleted struct {
	InvestmentID    string `json:"investment_id"`
	SaleID          string `json:"sale_id"`
	SharesAvailable int64  `json:"shares_available"`
}

func (SharesReservationCompleted) MessageType() string { return TypeSharesReservationCompleted }

type CancelSharesReservation struct {
	InvestmentID string `json:"investment_id"`
	SaleID       string `json:"sale_id"`
}

func (CancelSharesReservation) MessageType() string { return TypeCancelSharesReservation }

type SharesReservationCanceled struct {
	InvestmentID string `json:"investment_id"`
	SaleID       string `json:"sale_id"`
}

func (SharesReservationCanceled) MessageType() string { return TypeSharesReservationCanceled }
