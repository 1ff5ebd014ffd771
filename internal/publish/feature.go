package publish

import (
	"log"
	"time"

	"github.com/stlgis/stl311/internal/store"
)

// Feature is one record in the portal's wire format.
type Feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry is a point in the portal's wire format.
type Geometry struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	SpatialReference SpatialReference `json:"spatialReference"`
}

type SpatialReference struct {
	WKID int `json:"wkid"`
}

// FeaturesFromStore converts stored rows to portal features. Date columns
// become epoch milliseconds; rows with unparseable stored dates keep a null
// attribute and are logged, not dropped.
func FeaturesFromStore(rows []store.StoredRequest) []Feature {
	feats := make([]Feature, 0, len(rows))
	for _, r := range rows {
		attrs := map[string]any{
			"REQUESTID":                          r.RequestID,
			"SRX":                                r.SRX,
			"SRY":                                r.SRY,
			"DATETIMEINIT":                       dateMillis(r.DateTimeInit, r.RequestID),
			"DATETIMECLOSED":                     dateMillis(r.DateTimeClosed, r.RequestID),
			"PRJCOMPLETEDATE":                    dateMillis(r.PrjCompleteDate, r.RequestID),
			"DATEINVTDONE":                       dateMillis(r.DateInvtDone, r.RequestID),
			"DATECANCELLED":                      dateMillis(r.DateCancelled, r.RequestID),
			"DESCRIPTION":                        strOrNil(r.Description),
			"PROBLEMCODE":                        strOrNil(r.ProblemCode),
			"PROBADDRESS":                        strOrNil(r.ProbAddress),
			"SUBMITTO":                           strOrNil(r.SubmitTo),
			"STATUS":                             strOrNil(r.Status),
			"EXPLANATION":                        strOrNil(r.Explanation),
			"CALLERTYPE":                         strOrNil(r.CallerType),
			"GROUP_":                             strOrNil(r.Group),
			"PROBADDTYPE":                        strOrNil(r.ProbAddType),
			"PROBCITY":                           strOrNil(r.ProbCity),
			"NEIGHBORHOOD":                       intOrNil(r.Neighborhood),
			"WARD":                               intOrNil(r.Ward),
			"PROBZIP":                            intOrNil(r.ProbZip),
			"PLAIN_ENGLISH_NAME_FOR_PROBLEMCODE": strOrNil(r.PlainEnglishName),
		}

		feats = append(feats, Feature{
			Attributes: attrs,
			Geometry: Geometry{
				X:                r.SRX,
				Y:                r.SRY,
				SpatialReference: SpatialReference{WKID: store.SRID},
			},
		})
	}
	return feats
}

func dateMillis(s *string, requestID string) any {
	if s == nil {
		return nil
	}
	t, err := store.ParseDBTime(*s)
	if err != nil {
		log.Printf("Unparseable stored date %q on request %s", *s, requestID)
		return nil
	}
	return t.UTC().UnixNano() / int64(time.Millisecond)
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func intOrNil(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}
