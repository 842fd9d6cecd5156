package storefront

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{
		URL:           server.URL,
		Account:       "acme",
		UserID:        "api-user",
		Password:      "api-pass",
		CrossRefField: "QuickBooksId",
		Timeout:       5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	// Most tests exercise an already-established session.
	client.activeKey = "active-key"
	client.keyType = keyTypeNode
	return client
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		keyType string
	}{
		{"node key", keyTypeNode},
		{"attribute key", keyTypeAttribute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				switch r.URL.Path {
				case "/testsubmit.rest":
					assert.Contains(t, string(body), "<UserID>api-user</UserID>")
					assert.Contains(t, string(body), "<Password>api-pass</Password>")
					w.Write([]byte(`<TestSubmitResponse><Key Type="` + tt.keyType + `">candidate-key</Key></TestSubmitResponse>`))
				case "/testverify.rest":
					assert.Contains(t, string(body), "candidate-key")
					w.Write([]byte(`<TestVerifyResponse><ActiveKey>the-active-key</ActiveKey></TestVerifyResponse>`))
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			})
			client.activeKey = ""
			client.keyType = ""

			require.NoError(t, client.Authenticate(context.Background()))
			assert.Equal(t, "the-active-key", client.activeKey)
			assert.Equal(t, tt.keyType, client.keyType)
		})
	}
}

func TestAuthenticateRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<TestSubmitResponse><Errors><Error><Number>101</Number><Description>Invalid account</Description></Error></Errors></TestSubmitResponse>`))
	})
	client.activeKey = ""

	err := client.Authenticate(context.Background())
	assert.ErrorIs(t, err, sync.ErrAuthFailed)
}

const orderPageXML = `<OrderQueryResponse>
  <NextPage/>
  <Order>
    <OrderNo>12345</OrderNo>
    <OrderDate>08/15/2026 13:45</OrderDate>
    <Customer><CustomerNo>42</CustomerNo><Type>Business</Type></Customer>
    <BillTo><Address>
      <FirstName>Jon</FirstName><LastName>Smith</LastName><Company>Globex</Company>
      <Street1>10 Main St</Street1><City>Springfield</City><State>CA</State><Zip>90210</Zip><Phone>555-0100</Phone>
    </Address></BillTo>
    <ShipTo><Address><FirstName>Jon</FirstName><LastName>Smith</LastName><Street1>10 Main St</Street1></Address></ShipTo>
    <Payment><Method>Credit Card</Method><CreditCard><Type>Visa</Type><Last4>1111</Last4></CreditCard><Status>Paid</Status></Payment>
    <SalesTax><Amount>4.13</Amount><Rate>8.25</Rate></SalesTax>
    <Total>54.13</Total>
    <LineItem><SKU>WIDGET-100</SKU><Description>Widget</Description><Quantity>2</Quantity><UnitPrice>27.50</UnitPrice><ExtPrice>55.00</ExtPrice></LineItem>
    <LineItem><SKU>DISCOUNT</SKU><Quantity>1</Quantity><UnitPrice>-5.00</UnitPrice><ExtPrice>-5.00</ExtPrice></LineItem>
    <Comments>PO 9987</Comments>
    <CustomField Name="QuickBooksId">80000001-1111</CustomField>
  </Order>
</OrderQueryResponse>`

func TestQueryOrders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orderquery.rest", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<Key>active-key</Key>")
		assert.Contains(t, string(body), "<BillingStatus>Paid</BillingStatus>")
		w.Write([]byte(orderPageXML))
	})

	status := sync.PaymentStatusPaid
	resp, err := client.QueryOrders(context.Background(), &sync.QueryOrdersRequest{
		Start:  time.Date(2026, 8, 10, 0, 0, 0, 0, time.Local),
		End:    time.Date(2026, 8, 17, 0, 0, 0, 0, time.Local),
		Status: &status,
		Page:   1,
	})
	require.NoError(t, err)

	assert.True(t, resp.HasMore)
	assert.Equal(t, 2, resp.NextPage)
	require.Len(t, resp.Orders, 1)

	ord := resp.Orders[0]
	assert.Equal(t, "12345", ord.ID)
	assert.Equal(t, "80000001-1111", ord.CrossID)
	assert.Equal(t, "42", ord.CustomerID)
	assert.Equal(t, 2026, ord.PlacedAt.Year())
	assert.True(t, ord.Taxed)
	assert.Equal(t, "4.13", ord.SalesTax.StringFixed(2))
	assert.Equal(t, "8.25", ord.TaxRate.String())
	assert.Equal(t, "54.13", ord.Total.StringFixed(2))
	assert.Equal(t, sync.PaymentStatusPaid, ord.Payment.Status)
	assert.Equal(t, "Visa", ord.Payment.CardType)
	assert.Equal(t, "Globex", ord.BillTo.Company)
	assert.Equal(t, "555-0100", ord.BillTo.Phone)
	require.Len(t, ord.Lines, 2)
	assert.Equal(t, sync.LineItemKindProduct, ord.Lines[0].Kind())
	assert.Equal(t, "55.00", ord.Lines[0].Total.StringFixed(2))
	assert.Equal(t, sync.LineItemKindDiscount, ord.Lines[1].Kind())
}

func TestQueryOrdersLastPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<OrderQueryResponse></OrderQueryResponse>`))
	})

	resp, err := client.QueryOrders(context.Background(), &sync.QueryOrdersRequest{
		Start: time.Now().Add(-24 * time.Hour),
		End:   time.Now(),
		Page:  3,
	})
	require.NoError(t, err)
	assert.False(t, resp.HasMore)
	assert.Empty(t, resp.Orders)
}

func TestQueryOrderByRefNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<OrderQueryResponse></OrderQueryResponse>`))
	})

	_, err := client.QueryOrderByRef(context.Background(), "99999")
	assert.ErrorIs(t, err, sync.ErrNotFound)
}

func TestQueryCustomerByID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customerquery.rest", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<CustomerNo>42</CustomerNo>")
		w.Write([]byte(`<CustomerQueryResponse><Customer>
			<CustomerNo>42</CustomerNo><Type>Business</Type>
			<FirstName>Jon</FirstName><LastName>Smith</LastName><Company>Globex</Company>
			<Email>jon@globex.example</Email>
			<CustomField Name="QuickBooksId">80000001-1111</CustomField>
		</Customer></CustomerQueryResponse>`))
	})

	cust, err := client.QueryCustomerByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", cust.ID)
	assert.Equal(t, "80000001-1111", cust.CrossID)
	assert.Equal(t, sync.CustomerTypeBusiness, cust.Type)
	assert.Equal(t, "Globex", cust.Company)
}

func TestQueryCustomerByNameNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<CustomerQueryResponse></CustomerQueryResponse>`))
	})

	_, err := client.QueryCustomerByName(context.Background(), "Nobody Here")
	assert.ErrorIs(t, err, sync.ErrNotFound)
}

func TestCreateCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/customerupdate.rest", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `Mode="Add"`)
		assert.Contains(t, string(body), `<CustomField Name="QuickBooksId">80000099-2222</CustomField>`)
		w.Write([]byte(`<CustomerUpdateResponse><Customer><CustomerNo>77</CustomerNo></Customer></CustomerUpdateResponse>`))
	})

	created, err := client.CreateCustomer(context.Background(), &sync.CustomerDraft{
		Name:      "Initech",
		Type:      sync.CustomerTypeBusiness,
		FirstName: "Bill",
		LastName:  "Lumbergh",
		Company:   "Initech",
		Email:     "bill@initech.example",
		SourceID:  "80000099-2222",
	})
	require.NoError(t, err)
	assert.Equal(t, "77", created.ID)
}

func TestCreateOrderRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<OrderCreateResponse><Errors><Error><Number>210</Number><Description>Unknown customer</Description></Error></Errors></OrderCreateResponse>`))
	})

	_, err := client.CreateOrder(context.Background(), &sync.OrderDraft{RefNumber: "QB-100"})
	assert.ErrorIs(t, err, sync.ErrValidation)
	assert.Contains(t, err.Error(), "Unknown customer")
}

func TestSetCrossReference(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `<CustomField Name="QuickBooksId">80000001-1111</CustomField>`)
		switch r.URL.Path {
		case "/customerupdate.rest":
			w.Write([]byte(`<CustomerUpdateResponse></CustomerUpdateResponse>`))
		case "/orderupdate.rest":
			w.Write([]byte(`<OrderUpdateResponse></OrderUpdateResponse>`))
		}
	})

	err := client.SetCrossReference(context.Background(), sync.EntityKindCustomer, "42", "QuickBooksId", "80000001-1111")
	require.NoError(t, err)
	assert.Equal(t, "/customerupdate.rest", gotPath)

	err = client.SetCrossReference(context.Background(), sync.EntityKindOrder, "12345", "QuickBooksId", "80000001-1111")
	require.NoError(t, err)
	assert.Equal(t, "/orderupdate.rest", gotPath)
}

func TestUpdateInventoryBatches(t *testing.T) {
	var batches []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/inventoryupdate.rest", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req inventoryUpdateRequest
		require.NoError(t, xml.Unmarshal(body, &req))
		batches = append(batches, len(req.Items))
		w.Write([]byte(`<InventoryUpdateResponse></InventoryUpdateResponse>`))
	})

	items := make([]sync.InventoryItem, 35)
	for i := range items {
		items[i] = sync.InventoryItem{SKU: "SKU", QuantityOnHand: i}
	}

	require.NoError(t, client.UpdateInventory(context.Background(), items))
	assert.Equal(t, []int{15, 15, 5}, batches)
}

func TestServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.QueryCustomerByID(context.Background(), "42")
	assert.ErrorIs(t, err, sync.ErrRequestFailed)
}
