package planner

// sceneTemplate is a catalogue entry. videoPrompt takes the formatted tempo
// through a single %s verb.
type sceneTemplate struct {
	imagePrompt string
	videoPrompt string
}

type family struct {
	style string
	// scenes is keyed by energy level; the "" entry serves every level without its own catalogue.
	scenes        map[string][]sceneTemplate
	specialMoment string
}

func (f family) catalogue(energyLevel string) []sceneTemplate {
	if c, ok := f.scenes[energyLevel]; ok {
		return c
	}
	return f.scenes[""]
}

var electronicFamily = family{
	style: "cyberpunk",
	scenes: map[string][]sceneTemplate{
		"high": {
			{
				imagePrompt: "massive futuristic cityscape at night, towering skyscrapers with neon lights, rain-soaked streets reflecting neon, cyberpunk atmosphere, cinematic wide shot, detailed architecture, dramatic lighting",
				videoPrompt: "neon signs flickering and pulsing intensely to %s BPM electronic beat, rain drops hitting the pavement creating ripples, cars driving by with light trails, city lights dancing",
			},
			{
				imagePrompt: "underground rave club interior, laser lights cutting through thick smoke, crowd of people dancing silhouettes, vibrant neon colors, high energy atmosphere, strobe lighting effects",
				videoPrompt: "laser lights sweeping rapidly across the dance floor to %s BPM rhythm, smoke swirling in patterns, silhouettes moving intensely to the beat, strobe effects",
			},
			{
				imagePrompt: "futuristic space station interior, holographic displays, advanced technology, metallic surfaces, blue and purple lighting, sci-fi atmosphere, high-tech environment",
				videoPrompt: "holographic displays responding to %s BPM electronic rhythm, data streams flowing across screens, futuristic technology pulsing with energy",
			},
			{
				imagePrompt: "cyberpunk alleyway at night, neon graffiti on walls, steam rising from manholes, urban decay mixed with technology, dramatic shadows, gritty futuristic atmosphere",
				videoPrompt: "neon graffiti glowing and pulsing to %s BPM beat, steam swirling in the air, shadows dancing on the walls, urban energy flowing through the space",
			},
		},
		"": {
			{
				imagePrompt: "modern electronic music studio, synthesizers and equipment, soft neon glow, professional setup, intimate atmosphere, creative workspace",
				videoPrompt: "equipment lights pulsing gently to %s BPM electronic rhythm, subtle movements, creative energy flowing through the space",
			},
			{
				imagePrompt: "futuristic lounge with ambient lighting, comfortable seating, holographic displays, modern design, relaxed electronic atmosphere",
				videoPrompt: "ambient lights shifting colors to %s BPM tempo, holographic displays responding to the music, peaceful electronic vibes",
			},
			{
				imagePrompt: "minimalist futuristic apartment, clean lines, soft LED lighting, modern furniture, serene atmosphere, high-tech but comfortable",
				videoPrompt: "LED lights gently pulsing to %s BPM rhythm, subtle color changes, peaceful electronic ambiance, modern living space",
			},
			{
				imagePrompt: "digital art gallery, abstract geometric patterns, soft neon colors, artistic atmosphere, creative space, modern art installation",
				videoPrompt: "geometric patterns shifting and morphing to %s BPM electronic rhythm, colors blending and changing, artistic digital expression",
			},
		},
	},
	specialMoment: "massive bass drop with strobe lights, crowd going wild, intense energy burst",
}

var rockFamily = family{
	style: "urban",
	scenes: map[string][]sceneTemplate{
		"": {
			{
				imagePrompt: "abandoned warehouse with graffiti walls, dramatic shadows, urban decay, gritty atmosphere, cinematic composition",
				videoPrompt: "graffiti art coming to life, paint splashing to %s BPM rock rhythm, shadows dancing on the walls",
			},
			{
				imagePrompt: "concert stage with spotlights, smoke machines, crowd silhouettes, rock concert atmosphere, dramatic lighting",
				videoPrompt: "guitar strings vibrating to %s BPM beat, spotlights sweeping the stage, crowd headbanging in slow motion",
			},
			{
				imagePrompt: "underground music venue, dim red lighting, exposed brick walls, intimate setting, raw atmosphere, indie rock vibe",
				videoPrompt: "red lights pulsing to %s BPM rock rhythm, shadows moving on brick walls, intimate concert energy",
			},
			{
				imagePrompt: "desert highway at sunset, vintage car, dust clouds, road trip atmosphere, golden hour lighting, freedom and adventure",
				videoPrompt: "dust clouds swirling to %s BPM rock beat, car headlights cutting through the dust, desert wind moving",
			},
			{
				imagePrompt: "urban rooftop at night, city skyline, industrial pipes, gritty urban landscape, dramatic city lighting",
				videoPrompt: "city lights twinkling to %s BPM rhythm, industrial pipes vibrating, urban energy flowing through the night",
			},
		},
	},
	specialMoment: "guitar solo with sparks flying, crowd erupting, pure rock energy",
}

var ambientFamily = family{
	style: "serene",
	scenes: map[string][]sceneTemplate{
		"": {
			{
				imagePrompt: "misty forest at dawn, sunlight filtering through trees, peaceful nature scene, soft natural lighting, serene atmosphere",
				videoPrompt: "gentle mist flowing through the trees to %s BPM ambient rhythm, leaves falling slowly, birds flying in the distance",
			},
			{
				imagePrompt: "mountain lake at sunset, reflection of clouds in water, peaceful landscape, golden hour lighting, tranquil scene",
				videoPrompt: "water ripples spreading across the lake to %s BPM tempo, clouds moving slowly across the sky, peaceful meditation",
			},
			{
				imagePrompt: "northern lights dancing in arctic sky, snow-covered landscape, aurora borealis, magical atmosphere, cold but beautiful",
				videoPrompt: "aurora lights dancing to %s BPM ambient rhythm, snow gently falling, magical northern lights flowing across the sky",
			},
			{
				imagePrompt: "zen garden with raked sand, stone arrangements, bamboo, peaceful meditation space, minimalist beauty, tranquil atmosphere",
				videoPrompt: "sand patterns shifting to %s BPM ambient rhythm, bamboo swaying gently, peaceful zen meditation energy",
			},
			{
				imagePrompt: "ocean waves at night, moonlight reflecting on water, peaceful seascape, serene ocean atmosphere, calming blue tones",
				videoPrompt: "waves gently rolling to %s BPM ambient rhythm, moonlight dancing on the water, peaceful ocean meditation",
			},
		},
	},
	specialMoment: "sunrise breaking through clouds, gentle transformation, peaceful awakening",
}

var popFamily = family{
	style: "contemporary",
	scenes: map[string][]sceneTemplate{
		"": {
			{
				imagePrompt: "colorful city street during golden hour, people walking, vibrant storefronts, upbeat urban atmosphere, warm lighting",
				videoPrompt: "people walking in rhythm to %s BPM pop beat, street performers dancing, colorful balloons floating by",
			},
			{
				imagePrompt: "modern apartment with large windows, city view, contemporary interior, bright and clean, stylish atmosphere",
				videoPrompt: "curtains swaying to %s BPM rhythm, city lights twinkling outside, person dancing in the living room",
			},
			{
				imagePrompt: "beach party at sunset, colorful umbrellas, people dancing, tropical atmosphere, warm golden lighting, summer vibes",
				videoPrompt: "people dancing on the beach to %s BPM pop rhythm, colorful umbrellas swaying, sunset creating golden reflections",
			},
			{
				imagePrompt: "shopping mall with bright lights, people walking, modern architecture, vibrant atmosphere, commercial but energetic",
				videoPrompt: "people walking in rhythm to %s BPM pop beat, bright lights pulsing, shopping energy flowing through the space",
			},
			{
				imagePrompt: "rooftop party with city skyline, colorful decorations, people celebrating, urban nightlife, vibrant party atmosphere",
				videoPrompt: "party decorations swaying to %s BPM pop rhythm, city lights twinkling, people celebrating with energy",
			},
		},
	},
	specialMoment: "confetti explosion, crowd cheering, pure joy and celebration",
}

var alternativeFamily = family{
	style: "artistic",
	scenes: map[string][]sceneTemplate{
		"": {
			{
				imagePrompt: "art gallery with abstract paintings, dramatic shadows, artistic atmosphere, creative lighting, modern art space",
				videoPrompt: "paint strokes moving across canvas to %s BPM alternative rhythm, shadows dancing on the walls, artistic expression",
			},
			{
				imagePrompt: "underground music venue, intimate setting, dim lighting, artistic crowd, creative atmosphere, indie vibe",
				videoPrompt: "musicians performing passionately to %s BPM beat, audience swaying, intimate connection between artist and crowd",
			},
			{
				imagePrompt: "vintage record store, vinyl records on shelves, warm lighting, nostalgic atmosphere, music lover sanctuary",
				videoPrompt: "record sleeves gently moving to %s BPM alternative rhythm, warm light dancing on vinyl, musical nostalgia flowing",
			},
			{
				imagePrompt: "coffee shop with exposed brick, indie atmosphere, people working on laptops, creative workspace, hipster vibe",
				videoPrompt: "coffee steam rising to %s BPM alternative rhythm, people typing in rhythm, creative energy flowing through the space",
			},
			{
				imagePrompt: "abandoned theater with vintage seats, dramatic lighting, artistic decay, creative space, theatrical atmosphere",
				videoPrompt: "stage lights flickering to %s BPM alternative rhythm, dust particles dancing in the light, theatrical energy flowing",
			},
		},
	},
	specialMoment: "artistic breakthrough, creative explosion, pure artistic expression",
}
