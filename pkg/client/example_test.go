package client_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ShravaniMogali/4GB-sub001/internal/models"
	"github.com/ShravaniMogali/4GB-sub001/pkg/client"
)

// Example demonstrates how to use the client to record a consignment and
// follow it through the supply chain. This is documentation only and does not
// run.
func Example() {
	// Create a new client
	c, err := client.New("http://localhost:8080",
		client.WithTimeout(3*time.Minute),
		client.WithUserAgent("example-app/1.0"),
	)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Check service health
	health, err := c.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("Service unhealthy: %v", err)
	}
	fmt.Printf("Ledger at block %d\n", health.BlockNumber)

	// Step 1: Register a producer; the session token is kept by the client
	reg, err := c.Register(ctx, "alice", "correct horse battery staple", "producer")
	if err != nil {
		if apiErr, ok := client.AsAPIError(err); ok && apiErr.IsBadRequest() {
			log.Fatalf("Principal already exists or role is invalid: %v", err)
		}
		log.Fatalf("Failed to register: %v", err)
	}
	fmt.Printf("Registered with ledger address %s\n", reg.Address)

	// Step 2: Record the consignment
	tx, err := c.CreateConsignment(ctx, models.CreateConsignmentRequest{
		ConsignmentID:  "TOMATO-001",
		ProductName:    "Roma Tomatoes",
		ProductionDate: "2024-03-01",
		FarmLocation:   "Salinas, CA",
		ProducerInfo:   "Green Valley Farms",
	})
	if err != nil {
		log.Fatalf("Failed to create consignment: %v", err)
	}
	fmt.Printf("Created in block %d: %s\n", tx.BlockNumber, tx.TransactionHash)

	// Step 3: Move it along
	if _, err := c.UpdateStatus(ctx, "TOMATO-001", "in_transit", "Highway 101"); err != nil {
		log.Fatalf("Failed to update status: %v", err)
	}

	// Step 4: Read back the history
	history, err := c.GetHistory(ctx, "TOMATO-001")
	if err != nil {
		log.Fatalf("Failed to get history: %v", err)
	}
	for _, u := range history {
		fmt.Printf("%s at %s by %s\n", u.Status, u.Location, u.HandlerAddress)
	}
}

// Example_errorHandling demonstrates proper error handling with the client.
// This is documentation only and does not run.
func Example_errorHandling() {
	c, err := client.New("http://localhost:8080", client.WithToken("session-token"))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Example of handling different types of API errors
	_, err = c.UpdateStatus(ctx, "UNKNOWN-001", "in_transit", "Depot")
	if err != nil {
		if apiErr, ok := client.AsAPIError(err); ok {
			switch {
			case apiErr.IsBadRequest():
				fmt.Println("Bad request: status and location are required")
			case apiErr.IsUnauthorized():
				fmt.Println("Session expired: authenticate again")
			case apiErr.IsForbidden():
				fmt.Println("Not a participant of this consignment")
			case apiErr.IsNotFound():
				fmt.Println("Consignment not found")
			case apiErr.ErrorCode == models.ErrorLedgerUnreachable:
				fmt.Println("Ledger node unreachable: retry later")
			default:
				fmt.Printf("API error %d: %s\n", apiErr.StatusCode, apiErr.Error())
			}
		} else {
			fmt.Printf("Network or other error: %v\n", err)
		}
	}
}

// Example_customHTTPClient shows how to use a custom HTTP client.
// This is documentation only and does not run.
func Example_customHTTPClient() {
	// Create a custom HTTP client with specific settings
	httpClient := &http.Client{
		Timeout: 5 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
		},
	}

	c, err := client.New("https://consignd.example.com",
		client.WithHTTPClient(httpClient),
		client.WithUserAgent("my-logistics-app/2.1"),
	)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	// Use the client normally
	if _, err := c.HealthCheck(context.Background()); err != nil {
		log.Printf("Health check failed: %v", err)
	}
}
