package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/and161185/orderhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func sampleOrder() (model.Order, model.Account) {
	acc := model.Account{ID: uuid.Must(uuid.NewV4()), Phone: "+1000", FullName: "Ann Lee"}
	o := model.Order{
		ID:        42,
		AccountID: acc.ID,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Items: []model.OrderItem{
			{ProductID: uuid.Must(uuid.NewV4()), ProductName: "Widget", Quantity: 1},
		},
	}
	return o, acc
}

func TestToOrderEvent(t *testing.T) {
	t.Parallel()
	o, acc := sampleOrder()
	evt := ToOrderEvent(o, acc)
	require.Equal(t, int64(42), evt.ID)
	require.Equal(t, "Ann Lee (+1000)", evt.User)
	require.Equal(t, []model.OrderEventItem{{ProductName: "Widget", Quantity: 1}}, evt.Items)
}

func TestToOrderEvent_NoItemsStillSerialisesArray(t *testing.T) {
	t.Parallel()
	o, acc := sampleOrder()
	o.Items = nil
	frame, err := OrderEventFrame(ToOrderEvent(o, acc))
	require.NoError(t, err)
	require.Contains(t, string(frame), `"items":[]`)
}

func TestOrderEventFrame_Shape(t *testing.T) {
	t.Parallel()
	o, acc := sampleOrder()
	frame, err := OrderEventFrame(ToOrderEvent(o, acc))
	require.NoError(t, err)

	var got struct {
		Order struct {
			ID        int64  `json:"id"`
			User      string `json:"user"`
			CreatedAt string `json:"created_at"`
			Items     []struct {
				ProductName string `json:"product_name"`
				Quantity    int    `json:"quantity"`
			} `json:"items"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(frame, &got))
	require.Equal(t, int64(42), got.Order.ID)
	require.Equal(t, "Ann Lee (+1000)", got.Order.User)
	require.Equal(t, "2026-03-01T12:00:00Z", got.Order.CreatedAt)
	require.Len(t, got.Order.Items, 1)
	require.Equal(t, "Widget", got.Order.Items[0].ProductName)
}

func TestToOrderJSON(t *testing.T) {
	t.Parallel()
	o, acc := sampleOrder()
	j := ToOrderJSON(o)
	require.Equal(t, acc.ID.String(), j.AccountID)
	require.Equal(t, "2026-03-01T12:00:00.000000Z", j.CreatedAt)
	require.Equal(t, o.Items[0].ProductID.String(), j.Items[0].ProductID)
}
