package domain

import (
	"github.com/civiclens/civiclens-backend/internal/domain/jobs"
	"github.com/civiclens/civiclens-backend/internal/domain/planning"
)

const (
	ImageSourceDocument   = planning.ImageSourceDocument
	ImageSourceStreetView = planning.ImageSourceStreetView

	PolyTypeRightOfWay = planning.PolyTypeRightOfWay
)

type Proposal = planning.Proposal
type Document = planning.Document
type Image = planning.Image
type Attribute = planning.Attribute
type Event = planning.Event
type EventCase = planning.EventCase
type Parcel = planning.Parcel

type JobRun = jobs.JobRun
