package transform

import (
	"fmt"
	"strconv"
	"time"

	"github.com/i474232898/geodata-aggregation/internal/common"
	"github.com/i474232898/geodata-aggregation/internal/feature"
	"github.com/i474232898/geodata-aggregation/internal/source"
)

// Keywords in Finnish and English that mark a message as severe.
var trafficSevereKeywords = []string{"accident", "onnettomuus", "closed", "suljettu"}

const (
	transitHighDelay   = 300.0
	transitMediumDelay = 120.0
)

type trafficMeta struct {
	SituationID   string `json:"situationId"`
	SituationType string `json:"situationType"`
	RoadName      string `json:"roadName,omitempty"`
}

type trainMeta struct {
	TrainNumber   int      `json:"trainNumber"`
	DepartureDate string   `json:"departureDate"`
	SpeedKMH      *float64 `json:"speedKmh,omitempty"`
	Accuracy      *float64 `json:"accuracyM,omitempty"`
}

type transitMeta struct {
	VehicleRef   string   `json:"vehicleRef"`
	Line         string   `json:"line,omitempty"`
	Destination  string   `json:"destination,omitempty"`
	DelaySeconds *float64 `json:"delaySeconds,omitempty"`
}

// Traffic requires a situation id.
func Traffic(msgs []source.TrafficMessage) Result {
	res := newResult(len(msgs))
	for _, m := range msgs {
		pt, ok := feature.PointFrom(m.Lat, m.Lon)
		if !ok || m.SituationID == "" {
			res.drop()
			continue
		}

		var end *time.Time
		if m.End != nil {
			e := *m.End
			end = &e
		}

		res.keep(feature.Feature{
			ID:           source.PrefixTraffic + m.SituationID,
			Geometry:     pt,
			Category:     feature.CategoryTraffic,
			Severity:     trafficSeverity(m),
			Title:        common.FirstNonEmpty(m.Title, m.SituationType),
			Description:  m.Comment,
			LocationName: m.RoadName,
			Timestamp:    m.Start,
			EndTime:      end,
			Source:       SourceDigitraffic,
			Metadata: metadata(trafficMeta{
				SituationID:   m.SituationID,
				SituationType: m.SituationType,
				RoadName:      m.RoadName,
			}),
		})
	}
	return res
}

func trafficSeverity(m source.TrafficMessage) feature.Severity {
	switch {
	case common.HasAnyFold(m.Title+" "+m.Comment, trafficSevereKeywords...):
		return feature.SeverityHigh
	case m.SituationType == "TRAFFIC_ANNOUNCEMENT", m.SituationType == "EXEMPTED_TRANSPORT":
		return feature.SeverityMedium
	default:
		return feature.SeverityLow
	}
}

// Trains reports a stopped train (speed 0) as medium.
func Trains(locs []source.TrainLocation) Result {
	res := newResult(len(locs))
	for _, l := range locs {
		pt, ok := feature.PointFrom(l.Lat, l.Lon)
		if !ok || l.TrainNumber <= 0 {
			res.drop()
			continue
		}

		severity := feature.SeverityLow
		description := "Speed not reported"
		if l.SpeedKMH != nil {
			description = fmt.Sprintf("Speed %s km/h", common.FormatFloat(*l.SpeedKMH))
			if *l.SpeedKMH == 0 {
				severity = feature.SeverityMedium
				description = "Stopped"
			}
		}

		number := strconv.Itoa(l.TrainNumber)
		res.keep(feature.Feature{
			ID:          source.PrefixTrain + common.JoinNonEmpty("-", number, l.DepartureDate),
			Geometry:    pt,
			Category:    feature.CategoryTrain,
			Severity:    severity,
			Title:       "Train " + number,
			Description: description,
			Timestamp:   l.Time,
			Source:      SourceDigitraffic,
			Metadata: metadata(trainMeta{
				TrainNumber:   l.TrainNumber,
				DepartureDate: l.DepartureDate,
				SpeedKMH:      l.SpeedKMH,
				Accuracy:      l.Accuracy,
			}),
		})
	}
	return res
}

// Transit requires a vehicle reference.
func Transit(vehicles []source.TransitVehicle) Result {
	res := newResult(len(vehicles))
	for _, v := range vehicles {
		pt, ok := feature.PointFrom(v.Lat, v.Lon)
		if !ok || v.VehicleRef == "" {
			res.drop()
			continue
		}

		severity := feature.SeverityLow
		description := "Delay not reported"
		if v.DelaySeconds != nil {
			severity = transitSeverity(*v.DelaySeconds)
			description = fmt.Sprintf("Delay %s s", common.FormatFloat(*v.DelaySeconds))
		}

		res.keep(feature.Feature{
			ID:           source.PrefixTransit + v.VehicleRef,
			Geometry:     pt,
			Category:     feature.CategoryTransit,
			Severity:     severity,
			Title:        common.JoinNonEmpty(" ", "Line", v.LineName),
			Description:  description,
			LocationName: v.DestinationName,
			Timestamp:    v.Time,
			Source:       SourceFoli,
			Metadata: metadata(transitMeta{
				VehicleRef:   v.VehicleRef,
				Line:         v.LineName,
				Destination:  v.DestinationName,
				DelaySeconds: v.DelaySeconds,
			}),
		})
	}
	return res
}

func transitSeverity(delaySeconds float64) feature.Severity {
	switch {
	case delaySeconds > transitHighDelay:
		return feature.SeverityHigh
	case delaySeconds > transitMediumDelay:
		return feature.SeverityMedium
	default:
		return feature.SeverityLow
	}
}
