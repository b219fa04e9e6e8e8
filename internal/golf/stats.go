package golf

// StatCategory identifies one season statistic tracked for every player.
type StatCategory struct {
	Key    string // label used by the stats source, e.g. "SG:TTG"
	ID     string // remote stat id
	Column string // storage column; the rank lives in Column+"_rank"
}

// StatCategories lists every tracked category in storage order.
var StatCategories = []StatCategory{
	{Key: "SG:TTG", ID: "02674", Column: "sgttg"},
	{Key: "SG:OTT", ID: "02567", Column: "sgott"},
	{Key: "SG:APR", ID: "02568", Column: "sgapr"},
	{Key: "SG:ATG", ID: "02569", Column: "sgatg"},
	{Key: "SG:P", ID: "02564", Column: "sgp"},
	{Key: "BIRDIES", ID: "352", Column: "birdies"},
	{Key: "PAR_3", ID: "142", Column: "par_3"},
	{Key: "PAR_4", ID: "143", Column: "par_4"},
	{Key: "PAR_5", ID: "144", Column: "par_5"},
	{Key: "TOTAL_DRIVING", ID: "129", Column: "total_driving"},
	{Key: "DRIVING_DISTANCE", ID: "101", Column: "driving_distance"},
	{Key: "DRIVING_ACCURACY", ID: "102", Column: "driving_accuracy"},
	{Key: "GIR", ID: "103", Column: "gir"},
	{Key: "SCRAMBLING", ID: "130", Column: "scrambling"},
	{Key: "OWGR", ID: "186", Column: "owgr"},
}

// NumStatCategories is len(StatCategories) as a constant for fixed-size arrays.
const NumStatCategories = 15
