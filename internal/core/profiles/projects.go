package profiles

import "github.com/JonMunkholm/xlimport/internal/core"

// Registry names used by the projects profile.
const (
	People        = "people"
	Organizations = "organizations"
	Categories    = "categories"
	Countries     = "countries"
)

func init() {
	core.Register(Projects())
}

// Projects returns the project tracking sheet profile.
//
// Several headers alias one attribute: the French labels of the original
// sheet come first, English ones follow.
func Projects() core.Profile {
	return core.Profile{
		Key:        "projects",
		Label:      "Projects",
		Collection: "projects",
		KeyAttr:    "name",
		Columns: []core.Column{
			{Header: "Nom", Attribute: "name"},
			{Header: "Name", Attribute: "name"},
			{Header: "Nature", Attribute: "nature"},
			{Header: "BU", Attribute: "bu"},
			{Header: "Domaine", Attribute: "domaine"},
			{Header: "Revenus", Attribute: "revenue_type"},
			{Header: "Cat Recurrent", Attribute: "cat_recurrent"},
			{Header: "AM", Attribute: "am"},
			{Header: "Presales", Attribute: "presales"},
			{Header: "Date IN", Attribute: "date_in"},
			{Header: "Pays", Attribute: "pays"},
			{Header: "Country", Attribute: "pays"},
			{Header: "Secteur", Attribute: "secteur"},
			{Header: "Description du Projet", Attribute: "description"},
			{Header: "Description", Attribute: "description"},
			{Header: "Circuit", Attribute: "circuit"},
			{Header: "SC", Attribute: "sc"},
			{Header: "CAS Build", Attribute: "cas_build"},
			{Header: "CAS Run", Attribute: "cas_run"},
			{Header: "CAS Train", Attribute: "cas_train"},
			{Header: "CAS Sw", Attribute: "cas_sw"},
			{Header: "CAS Hw", Attribute: "cas_hw"},
			{Header: "CAS", Attribute: "cas"},
			{Header: "CAF YTD", Attribute: "cafy"},
			{Header: "Raf YTD", Attribute: "rafytd"},
			{Header: "Raf Y+1", Attribute: "rafy_1"},
			{Header: "Projected CAF Y", Attribute: "projected_caf_y"},
			{Header: "Raf Total", Attribute: "raftotal"},
			{Header: "Risque", Attribute: "risque"},
			{Header: "Priorité", Attribute: "priorite"},
			{Header: "Priorite", Attribute: "priorite"},
			{Header: "Last Notice Date", Attribute: "last_notice_date"},
			{Header: "Contrat Start Date", Attribute: "contratstartdate"},
			{Header: "Contrat End Date", Attribute: "contratenddate"},
			{Header: "Délai Contractuel", Attribute: "delaicontractuel"},
			{Header: "Statut", Attribute: "etat_projet"},
			{Header: "PM", Attribute: "user_id"},
			{Header: "Customer", Attribute: "partner_id"},
			{Header: "Client", Attribute: "partner_id"},
		},
		Attributes: []core.AttributeSpec{
			{Name: "name", Kind: core.KindText},
			{Name: "nature", Kind: core.KindEnum, Synonyms: NatureLabels, Fallback: "all"},
			{Name: "bu", Kind: core.KindEnum, Synonyms: BusinessUnitLabels, Fallback: "ict"},
			{Name: "domaine", Kind: core.KindEnum, Synonyms: DomainLabels, Fallback: "others"},
			{Name: "revenue_type", Kind: core.KindEnum, Synonyms: RevenueLabels, Fallback: "oneshot"},
			{Name: "circuit", Kind: core.KindEnum, Synonyms: CircuitLabels, Fallback: "normal"},
			{Name: "risque", Kind: core.KindEnum, Synonyms: RiskLabels},
			{Name: "priorite", Kind: core.KindEnum, Synonyms: PriorityLabels, Fallback: "normal"},

			{Name: "cat_recurrent", Kind: core.KindText},
			{Name: "description", Kind: core.KindText},
			{Name: "etat_projet", Kind: core.KindText},

			{Name: "date_in", Kind: core.KindDate},
			{Name: "last_notice_date", Kind: core.KindDate},
			{Name: "contratstartdate", Kind: core.KindDate},
			{Name: "contratenddate", Kind: core.KindDate},
			{Name: "delaicontractuel", Kind: core.KindDate},

			{Name: "cas_build", Kind: core.KindNumeric},
			{Name: "cas_run", Kind: core.KindNumeric},
			{Name: "cas_train", Kind: core.KindNumeric},
			{Name: "cas_sw", Kind: core.KindNumeric},
			{Name: "cas_hw", Kind: core.KindNumeric},
			{Name: "cas", Kind: core.KindNumeric},
			{Name: "cafy", Kind: core.KindNumeric},
			{Name: "rafytd", Kind: core.KindNumeric},
			{Name: "rafy_1", Kind: core.KindNumeric},
			{Name: "projected_caf_y", Kind: core.KindNumeric},
			{Name: "raftotal", Kind: core.KindNumeric},

			{Name: "am", Kind: core.KindReference, Registry: People},
			{Name: "presales", Kind: core.KindReference, Registry: People},
			{Name: "sc", Kind: core.KindReference, Registry: People},
			{Name: "user_id", Kind: core.KindReference, Registry: People},
			{Name: "partner_id", Kind: core.KindReference, Registry: Organizations},
			{Name: "secteur", Kind: core.KindReference, Registry: Categories},
			{Name: "pays", Kind: core.KindReference, Registry: Countries},
		},
		Registries: []core.RegistrySpec{
			{Name: People, MatchFields: []string{"login"}, HandleField: "login"},
			{Name: Organizations},
			{Name: Categories},
			{Name: Countries, MatchFields: []string{"code"}, SearchOnly: true},
		},
	}
}
