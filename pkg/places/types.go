package places

import "time"

// Place is a typed nearby-search result. Optional upstream fields are
// pointers: absent means the API did not return them, never a sentinel.
type Place struct {
	PlaceID          string
	Name             string
	Address          string
	Lat              float64
	Lng              float64
	Rating           *float64
	UserRatingsTotal *int
	PriceLevel       *int
	Types            []string
	BusinessStatus   string
	PhotoRefs        []string
}

// Details extends a Place with the fields only the details endpoint returns.
type Details struct {
	Place
	Phone   *string
	Website *string
	Hours   []string
	Reviews []Review
}

// Review is a review attached to a place's details.
type Review struct {
	Author string
	Rating float64
	Text   string
	Time   time.Time
}

// --- raw wire shapes; the strict parsing boundary lives in this file ---

type rawResponse struct {
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message"`
	Results       []rawPlace    `json:"results"`
	Result        *rawPlace     `json:"result"`
	NextPageToken string        `json:"next_page_token"`
}

type rawPlace struct {
	PlaceID          string      `json:"place_id"`
	Name             string      `json:"name"`
	Vicinity         string      `json:"vicinity"`
	FormattedAddress string      `json:"formatted_address"`
	Geometry         rawGeometry `json:"geometry"`
	Rating           *float64    `json:"rating"`
	UserRatingsTotal *int        `json:"user_ratings_total"`
	PriceLevel       *int        `json:"price_level"`
	Types            []string    `json:"types"`
	BusinessStatus   string      `json:"business_status"`
	Photos           []rawPhoto  `json:"photos"`

	// details-only fields
	FormattedPhoneNumber string        `json:"formatted_phone_number"`
	Website              string        `json:"website"`
	OpeningHours         *rawHours     `json:"opening_hours"`
	Reviews              []rawReview   `json:"reviews"`
}

type rawGeometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

type rawPhoto struct {
	PhotoReference string `json:"photo_reference"`
}

type rawHours struct {
	WeekdayText []string `json:"weekday_text"`
}

type rawReview struct {
	AuthorName string  `json:"author_name"`
	Rating     float64 `json:"rating"`
	Text       string  `json:"text"`
	Time       int64   `json:"time"`
}

func (rp rawPlace) toPlace() Place {
	p := Place{
		PlaceID:          rp.PlaceID,
		Name:             rp.Name,
		Address:          rp.Vicinity,
		Lat:              rp.Geometry.Location.Lat,
		Lng:              rp.Geometry.Location.Lng,
		Rating:           rp.Rating,
		UserRatingsTotal: rp.UserRatingsTotal,
		PriceLevel:       rp.PriceLevel,
		Types:            rp.Types,
		BusinessStatus:   rp.BusinessStatus,
	}
	if p.Address == "" {
		p.Address = rp.FormattedAddress
	}
	for _, ph := range rp.Photos {
		if ph.PhotoReference != "" {
			p.PhotoRefs = append(p.PhotoRefs, ph.PhotoReference)
		}
	}
	return p
}

func (rp rawPlace) toDetails() *Details {
	d := &Details{Place: rp.toPlace()}
	if rp.FormattedPhoneNumber != "" {
		phone := rp.FormattedPhoneNumber
		d.Phone = &phone
	}
	if rp.Website != "" {
		site := rp.Website
		d.Website = &site
	}
	if rp.OpeningHours != nil {
		d.Hours = rp.OpeningHours.WeekdayText
	}
	for _, rr := range rp.Reviews {
		d.Reviews = append(d.Reviews, Review{
			Author: rr.AuthorName,
			Rating: rr.Rating,
			Text:   rr.Text,
			Time:   time.Unix(rr.Time, 0).UTC(),
		})
	}
	return d
}
