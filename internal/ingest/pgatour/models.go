package pgatour

import (
	"bytes"
	"encoding/json"
	"strconv"
)

const pastResultsQuery = `query TournamentPastResults($tournamentPastResultsId: ID!, $year: Int) {
  tournamentPastResults(id: $tournamentPastResultsId, year: $year) {
    id
    players {
      id
      position
      player {
        displayName
      }
      rounds {
        parRelativeScore
      }
      additionalData
    }
  }
}`

const statDetailsQuery = `query StatDetails($tourCode: TourCode!, $statId: String!, $year: Int, $eventQuery: StatDetailEventQuery) {
  statDetails(
    tourCode: $tourCode
    statId: $statId
    year: $year
    eventQuery: $eventQuery
  ) {
    rows {
      ... on StatDetailsPlayer {
        playerName
        rank
        stats {
          statValue
        }
      }
    }
  }
}`

// TourCode selects the PGA TOUR in StatDetails.
const TourCode = "R"

type graphQLRequest struct {
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
	Query         string                 `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type pastResultsResponse struct {
	Data struct {
		TournamentPastResults *struct {
			ID      string             `json:"id"`
			Players []PastResultPlayer `json:"players"`
		} `json:"tournamentPastResults"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type statDetailsResponse struct {
	Data struct {
		StatDetails *struct {
			Rows []StatRow `json:"rows"`
		} `json:"statDetails"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// PastResultPlayer is one player entry of TournamentPastResults.
// AdditionalData is positional: index 0 is points, index 1 is official money.
type PastResultPlayer struct {
	ID       string     `json:"id"`
	Position FlexString `json:"position"`
	Player   struct {
		DisplayName string `json:"displayName"`
	} `json:"player"`
	Rounds []struct {
		ParRelativeScore FlexString `json:"parRelativeScore"`
	} `json:"rounds"`
	AdditionalData []FlexString `json:"additionalData"`
}

// StatRow is one player row of StatDetails. Rows for other union members decode empty.
type StatRow struct {
	PlayerName string     `json:"playerName"`
	Rank       FlexString `json:"rank"`
	Stats      []struct {
		StatValue FlexString `json:"statValue"`
	} `json:"stats"`
}

// FlexString decodes a JSON string, number or null. Valid is false for null or absent values.
type FlexString struct {
	String string
	Valid  bool
}

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = FlexString{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString{String: s, Valid: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString{String: n.String(), Valid: true}
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(f.String)), nil
}
