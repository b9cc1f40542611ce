package models

import "time"

// Party is the normalized record of a person, shared across cases. One record per signature.
type Party struct {
	ID          string    `json:"id" db:"id"`
	Signature   string    `json:"signature" db:"signature"`
	NameAr      string    `json:"name_ar,omitempty" db:"name_ar"`
	NameEn      string    `json:"name_en,omitempty" db:"name_en"`
	PersonalID  string    `json:"personal_id,omitempty" db:"personal_id"`
	Nationality string    `json:"nationality,omitempty" db:"nationality"`
	Age         string    `json:"age,omitempty" db:"age"`
	Gender      string    `json:"gender,omitempty" db:"gender"`
	Occupation  string    `json:"occupation,omitempty" db:"occupation"`
	Phone       string    `json:"phone,omitempty" db:"phone"`
	Address     string    `json:"address,omitempty" db:"address"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Charge is the normalized record of a cited offense
type Charge struct {
	ID            string    `json:"id" db:"id"`
	Signature     string    `json:"signature" db:"signature"`
	ArticleNumber string    `json:"article_number,omitempty" db:"article_number"`
	DescriptionAr string    `json:"description_ar,omitempty" db:"description_ar"`
	DescriptionEn string    `json:"description_en,omitempty" db:"description_en"`
	LawName       string    `json:"law_name,omitempty" db:"law_name"`
	LawYear       string    `json:"law_year,omitempty" db:"law_year"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Evidence is the normalized record of an evidence item
type Evidence struct {
	ID            string    `json:"id" db:"id"`
	Signature     string    `json:"signature" db:"signature"`
	Type          string    `json:"type,omitempty" db:"type"`
	DescriptionAr string    `json:"description_ar,omitempty" db:"description_ar"`
	DescriptionEn string    `json:"description_en,omitempty" db:"description_en"`
	CollectedDate string    `json:"collected_date,omitempty" db:"collected_date"`
	Location      string    `json:"location,omitempty" db:"location"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FillParty copies fields from src into dst where dst is empty, reporting whether anything changed
func FillParty(dst *Party, src Party) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.NameAr, src.NameAr},
		{&dst.NameEn, src.NameEn},
		{&dst.PersonalID, src.PersonalID},
		{&dst.Nationality, src.Nationality},
		{&dst.Age, src.Age},
		{&dst.Gender, src.Gender},
		{&dst.Occupation, src.Occupation},
		{&dst.Phone, src.Phone},
		{&dst.Address, src.Address},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}
	return changed
}

// FillCharge copies empty fields of dst from src
func FillCharge(dst *Charge, src Charge) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.DescriptionAr, src.DescriptionAr},
		{&dst.ArticleNumber, src.ArticleNumber},
		{&dst.DescriptionEn, src.DescriptionEn},
		{&dst.LawName, src.LawName},
		{&dst.LawYear, src.LawYear},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}
	return changed
}

// FillEvidence copies empty fields of dst from src
func FillEvidence(dst *Evidence, src Evidence) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.Type, src.Type},
		{&dst.DescriptionAr, src.DescriptionAr},
		{&dst.DescriptionEn, src.DescriptionEn},
		{&dst.CollectedDate, src.CollectedDate},
		{&dst.Location, src.Location},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}
	return changed
}
