package v1

import "time"

// Page is the list envelope returned by the collection endpoints.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type Category struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Costume struct {
	ID         string  `json:"id,omitempty"`
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	CategoryID string  `json:"categoryId"`
	Size       string  `json:"size,omitempty"`
	Color      string  `json:"color,omitempty"`
	RentalFee  float64 `json:"rentalFee"`
	Deposit    float64 `json:"deposit"`
	Quantity   int     `json:"quantity"`
	Available  int     `json:"available"`
	Status     string  `json:"status"`
	ImageURL   string  `json:"imageUrl,omitempty"`
}

type Customer struct {
	ID              string    `json:"id,omitempty"`
	FullName        string    `json:"fullName"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	Address         string    `json:"address,omitempty"`
	CompletedOrders int       `json:"completedOrders"`
	TotalSpent      float64   `json:"totalSpent"`
	CreatedAt       time.Time `json:"createdAt"`
}

type OrderItem struct {
	CostumeID string  `json:"costumeId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type Order struct {
	ID          string      `json:"id,omitempty"`
	CustomerID  string      `json:"customerId"`
	Items       []OrderItem `json:"items"`
	RentalStart time.Time   `json:"rentalStart"`
	RentalEnd   time.Time   `json:"rentalEnd"`
	TotalAmount float64     `json:"totalAmount"`
	PaidAmount  float64     `json:"paidAmount"`
	Status      string      `json:"status"`
	Note        string      `json:"note,omitempty"`
}

type DashboardStats struct {
	TotalCostumes     int     `json:"totalCostumes"`
	AvailableCostumes int     `json:"availableCostumes"`
	TotalCustomers    int     `json:"totalCustomers"`
	ActiveOrders      int     `json:"activeOrders"`
	MonthlyRevenue    float64 `json:"monthlyRevenue"`
	OutstandingAmount float64 `json:"outstandingAmount"`
}
