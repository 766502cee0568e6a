package catalog

import (
	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTITION DESCRIPTORS
// One descriptor per category replaces the per-level scan functions of the
// original site. The scanner iterates a descriptor's partitions in order;
// the evaluator variant (cluster cutoff vs mean grade) is carried by the
// category itself.
// ══════════════════════════════════════════════════════════════════════════════

// Descriptor registers the fixed, ordered partition list for one category.
type Descriptor struct {
	Category   candidate.Category
	Partitions []string
}

// degreeClusters are the twenty KUCCPS degree clusters, in cluster order.
var degreeClusters = []string{
	"cluster_1", "cluster_2", "cluster_3", "cluster_4", "cluster_5",
	"cluster_6", "cluster_7", "cluster_8", "cluster_9", "cluster_10",
	"cluster_11", "cluster_12", "cluster_13", "cluster_14", "cluster_15",
	"cluster_16", "cluster_17", "cluster_18", "cluster_19", "cluster_20",
}

// descriptors lists every category's partitions. Order is fixed: results are
// grouped and rendered in this order.
var descriptors = map[candidate.Category]Descriptor{
	candidate.CategoryDegree: {
		Category:   candidate.CategoryDegree,
		Partitions: degreeClusters,
	},
	candidate.CategoryDiploma: {
		Category: candidate.CategoryDiploma,
		Partitions: []string{
			"agriculture", "applied_sciences", "building_construction",
			"business", "clothing_fashion", "computing_it", "engineering",
			"graphics_media", "health_sciences", "hospitality",
			"natural_resources", "nutrition_dietetics", "social_services",
			"technical_courses",
		},
	},
	candidate.CategoryTeacher: {
		Category: candidate.CategoryTeacher,
		Partitions: []string{
			"early_childhood", "primary_education", "secondary_arts",
			"secondary_science", "physical_education", "special_needs",
			"guidance_counselling", "adult_education", "islamic_education",
			"music_education", "home_science_education", "agriculture_education",
		},
	},
	candidate.CategoryKMTC: {
		Category: candidate.CategoryKMTC,
		Partitions: []string{
			"clinical_medicine", "community_health", "dental_sciences",
			"health_records", "medical_education", "medical_engineering",
			"medical_laboratory", "nursing", "nutrition", "orthopaedics",
			"pharmacy", "public_health", "radiography",
		},
	},
	candidate.CategoryCertificate: {
		Category: candidate.CategoryCertificate,
		Partitions: []string{
			"agriculture", "applied_sciences", "building_construction",
			"business", "clothing_fashion", "computing_it", "engineering",
			"health_sciences", "hospitality", "natural_resources",
			"social_services", "technical_courses",
		},
	},
	candidate.CategoryArtisan: {
		Category: candidate.CategoryArtisan,
		Partitions: []string{
			"automotive", "building_construction", "carpentry_joinery",
			"electrical_installation", "fashion_design", "food_beverage",
			"hairdressing_beauty", "masonry", "metal_processing",
			"plumbing", "welding_fabrication",
		},
	},
}

// DescriptorFor returns the partition descriptor for a category.
func DescriptorFor(category candidate.Category) (Descriptor, bool) {
	d, ok := descriptors[category]
	return d, ok
}

// PartitionsFor returns the ordered partition list for a category.
// An unknown category yields an empty list.
func PartitionsFor(category candidate.Category) []string {
	d, ok := descriptors[category]
	if !ok {
		return nil
	}
	out := make([]string, len(d.Partitions))
	copy(out, d.Partitions)
	return out
}

// IsRegisteredPartition reports whether a partition belongs to a category.
func IsRegisteredPartition(category candidate.Category, partition string) bool {
	d, ok := descriptors[category]
	if !ok {
		return false
	}
	for _, p := range d.Partitions {
		if p == partition {
			return true
		}
	}
	return false
}
