package styles

import "fmt"

var defaultStyles = []Style{
	{"1950s", "A dramatic, black and white Film Noir look with sharp shadows."},
	{"1970s", "Get ready for the disco floor with vibrant colors and a groovy vibe."},
	{"1990s", "Embrace the alternative scene with a moody, grunge-inspired aesthetic."},
	{"Victorian", "A formal, sepia-toned portrait from the age of invention."},
	{"Future", "Step into a neon-lit, high-tech city of tomorrow."},
	{Wildcard, "A random portal to an unknown style. What will you become?"},
}

var poolStyles = []Style{
	{"1950s Film Noir", "Classic black & white with dramatic shadows and a mysterious mood."},
	{"1970s Disco", "Vibrant, flashy, and ready for a night at the disco club."},
	{"1990s Grunge", "An edgy, alternative look with flannel, faded tones, and raw attitude."},
	{"Victorian Daguerreotype", "A haunting, early-photography style with sepia tones and a formal pose."},
	{"Futuristic Neon", "Bathed in the glowing lights of a high-tech, Blade Runner-esque city."},
	{"Renaissance Portrait", "Become a timeless masterpiece in the style of the old masters."},
	{"Ancient Greek Sculpture", "Chiselled from marble, a classic and heroic transformation."},
	{"Art Deco Poster", "Bold lines, geometric shapes, and the glamour of the Roaring Twenties."},
	{"Cyberpunk Hero", "A high-tech rebel in a dystopian, neon-lit metropolis."},
	{"Steampunk Inventor", "An adventurer from an age of steam power and intricate clockwork."},
	{"Fantasy Elf", "An elegant and ethereal being from a realm of ancient magic."},
	{"Pop Art Comic", "Bold dots, vibrant colors, and the action-packed style of a comic book."},
	{"Vaporwave Glitch", "A retro-futuristic aesthetic with glitched visuals and pastel tones."},
	{"Gothic Painting", "A dark, dramatic, and romantic style with a touch of melancholy."},
	{"Impressionist Artwork", "Soft, dreamy brushstrokes that capture the fleeting quality of light."},
	{"Surrealist Dreamscape", "A bizarre, fantastical, and mind-bending journey into the subconscious."},
	{"Tribal Warrior", "Adorned with intricate patterns and the fierce spirit of a warrior."},
	{"Wasteland Survivor", "A rugged hero navigating a gritty, post-apocalyptic world."},
	{"Minimalist Ink Wash", "A simple, elegant, and expressive style inspired by traditional calligraphy."},
	{"Psychedelic 60s Poster", "Swirling patterns, vibrant colors, and the free-spirited vibe of the Summer of Love."},
	{"Ancient Egyptian Papyrus", "Transformed into a figure from the time of pharaohs and pyramids."},
	{"Art Nouveau Illustration", "Elegant, flowing lines and ornate details inspired by nature."},
}

var surpriseStyles = []string{
	"1920s Art Deco",
	"1960s Psychedelic",
	"Cyberpunk",
	"Steampunk",
	"Fantasy Portrait",
	"Pop Art",
	"Anime",
	"Vaporwave",
}

// BatchPrompt is the prompt used for items of a batch.
func BatchPrompt(target string) string {
	return fmt.Sprintf("Reimagine the person in this photo in the style of %s. "+
		"This includes clothing, hairstyle, photo quality, and the overall aesthetic of that style. "+
		"The output must be a photorealistic image showing the person clearly.", target)
}

// RegeneratePrompt is the shorter prompt used when a single item is retried.
func RegeneratePrompt(target string) string {
	return fmt.Sprintf("Reimagine the person in this photo in the style of %s.", target)
}
