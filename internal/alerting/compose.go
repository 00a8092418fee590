package alerting

import (
	"fmt"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// Title is the fixed headline of every smart departure push.
const Title = "Smart departure suggestion"

// TripContext carries the trip details a message may interpolate.
type TripContext struct {
	TripID      string
	DepartureAt time.Time
	Timezone    string
}

// Message is a composed push notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Compose renders the advisory for a found delay. Improvement is rounded to
// the nearest whole percent. The suggested departure is the scored forecast
// hour, so an off-hour departure is quoted on the hour.
func Compose(result domain.BestDelayResult, trip TripContext) Message {
	pct := result.RoundedImprovement()
	body := fmt.Sprintf("Delay %dh avoids ~%d%% of hazards", result.DelayHours, pct)
	if !trip.DepartureAt.IsZero() {
		leave := domain.DepartureHour(trip.DepartureAt).Add(time.Duration(result.DelayHours) * time.Hour).In(location(trip.Timezone))
		body += fmt.Sprintf(" (leave at %s)", leave.Format("15:04 MST"))
	}

	return Message{
		Title: Title,
		Body:  body,
		Data: map[string]string{
			"type":            "smart_departure",
			"trip_id":         trip.TripID,
			"delay_hours":     strconv.Itoa(result.DelayHours),
			"improvement_pct": strconv.FormatInt(pct, 10),
		},
	}
}

func location(label string) *time.Location {
	if label == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(label)
	if err != nil {
		return time.UTC
	}
	return loc
}
