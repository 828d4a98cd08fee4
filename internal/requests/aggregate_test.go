package requests

import (
	"testing"

	"kitchen_requests/internal/model"
)

func lineItems(pairs ...int) []model.RequestLineItem {
	out := make([]model.RequestLineItem, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.RequestLineItem{Quantity: pairs[i], PreparedQuantity: pairs[i+1]})
	}
	return out
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name  string
		items []model.RequestLineItem
		want  model.RequestStatus
	}{
		{"nothing prepared", lineItems(1, 0, 2, 0), model.RequestNew},
		{"single item untouched", lineItems(3, 0), model.RequestNew},
		{"one finished one untouched", lineItems(1, 0, 2, 2), model.RequestInProgress},
		{"partial", lineItems(3, 1), model.RequestInProgress},
		{"all partial", lineItems(2, 1, 2, 1), model.RequestInProgress},
		{"all finished", lineItems(1, 1, 2, 2), model.RequestReadyToCollect},
		{"single finished", lineItems(4, 4), model.RequestReadyToCollect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Aggregate(tc.items); got != tc.want {
				t.Fatalf("Aggregate: want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestAggregate_ReadyIffAllFinished(t *testing.T) {
	for q1 := 1; q1 <= 3; q1++ {
		for p1 := 0; p1 <= q1; p1++ {
			for q2 := 1; q2 <= 3; q2++ {
				for p2 := 0; p2 <= q2; p2++ {
					got := Aggregate(lineItems(q1, p1, q2, p2))
					allFinished := p1 == q1 && p2 == q2
					if (got == model.RequestReadyToCollect) != allFinished {
						t.Fatalf("q=(%d,%d) p=(%d,%d): got=%s", q1, q2, p1, p2, got)
					}
					if p1 == 0 && p2 == 0 && got != model.RequestNew {
						t.Fatalf("all zero: want NEW got=%s", got)
					}
				}
			}
		}
	}
}

func TestAggregate_EmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on empty line items")
		}
	}()
	Aggregate(nil)
}

func TestStatusChangeVocabulary(t *testing.T) {
	cases := []struct {
		status      model.RequestStatus
		wantPacking model.PackingStatus
		wantRequest model.RequestStatus
	}{
		{model.RequestNew, model.PackingNotStarted, model.RequestInProgress},
		{model.RequestInProgress, model.PackingInProgress, model.RequestInProgress},
		{model.RequestReadyToCollect, model.PackingReadyToCollect, model.RequestReadyToCollect},
	}
	for _, tc := range cases {
		got := statusChange(7, tc.status)
		if got.RequestID != 7 || got.PackingStatus != tc.wantPacking || got.RequestStatus != tc.wantRequest {
			t.Fatalf("statusChange(%s): got=%+v", tc.status, got)
		}
		if err := got.Validate(); err != nil {
			t.Fatalf("statusChange(%s) invalid: %v", tc.status, err)
		}
	}
}
